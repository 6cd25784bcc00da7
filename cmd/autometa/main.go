// Copyright 2025 The autometa Authors
// This file is part of the autometa library.
//
// The autometa library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The autometa library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the autometa library. If not, see <http://www.gnu.org/licenses/>.

// autometa runs the off-chain half of the workflow engine: the scheduler
// that evaluates triggers against the on-chain registry, or the worker that
// drains the job queue and submits execution transactions. Exactly one of
// each should run per deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/autometa-labs/autometa/config"
	"github.com/autometa-labs/autometa/executor"
	"github.com/autometa-labs/autometa/history"
	"github.com/autometa-labs/autometa/prices"
	"github.com/autometa-labs/autometa/queue"
	"github.com/autometa-labs/autometa/registry"
	"github.com/autometa-labs/autometa/scheduler"
	"github.com/autometa-labs/autometa/triggers"
	"github.com/autometa-labs/autometa/worker"
	"github.com/autometa-labs/autometa/workflow"
)

func main() {
	app := &cli.App{
		Name:  "autometa",
		Usage: "off-chain workflow automation engine",
		Commands: []*cli.Command{
			{
				Name:   "scheduler",
				Usage:  "Run the trigger evaluation loop",
				Flags:  config.Flags,
				Action: runScheduler,
			},
			{
				Name:   "worker",
				Usage:  "Run the job execution worker",
				Flags:  config.Flags,
				Action: runWorker,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup parses and validates the configuration, installs the root log
// handler and returns a context cancelled on SIGINT/SIGTERM.
func setup(ctx *cli.Context, mode config.Mode) (*config.Config, context.Context, context.CancelFunc, error) {
	cfg := config.FromCLI(ctx)

	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	handler := log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.StreamHandler(os.Stderr, log.TerminalFormat(usecolor)))
	log.Root().SetHandler(handler)

	if err := cfg.Validate(mode); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return cfg, runCtx, stop, nil
}

// dial connects to the chain RPC and cross-checks the node's chain id
// against the configured one. A mismatch means signed transactions would be
// rejected, so it is fatal.
func dial(ctx context.Context, cfg *config.Config) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if chainID.Uint64() != cfg.ChainID {
		return nil, fmt.Errorf("chain id mismatch: node has %d, configured %d", chainID, cfg.ChainID)
	}
	log.Info("Connected to chain", "rpc", cfg.RPCURL, "chainid", cfg.ChainID)
	return client, nil
}

func runScheduler(ctx *cli.Context) error {
	cfg, runCtx, stop, err := setup(ctx, config.ModeScheduler)
	if err != nil {
		return err
	}
	defer stop()

	client, err := dial(runCtx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	gateway, err := registry.NewGateway(client, cfg.Registry())
	if err != nil {
		return err
	}
	jobs, err := queue.New(runCtx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var backend *prices.BackendClient
	if cfg.UseBackend {
		backend = prices.NewBackendClient(cfg.BackendURL, prices.NewHTTPClient())
	}
	adapter := prices.NewAdapter(cfg.PriceFeedURL, backend, cfg.SupportedAssets)
	adapter.SetCacheTTL(cfg.CacheTTL)

	evals := map[workflow.TriggerType]triggers.Evaluator{
		workflow.TriggerTime:        triggers.NewTime(),
		workflow.TriggerPrice:       triggers.NewPrice(adapter),
		workflow.TriggerWalletEvent: triggers.NewWalletEvent(client, cfg.ScanWindow),
	}
	err = scheduler.New(gateway, jobs, evals, cfg.PollInterval, cfg.MaxConcurrent).Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runWorker(ctx *cli.Context) error {
	cfg, runCtx, stop, err := setup(ctx, config.ModeWorker)
	if err != nil {
		return err
	}
	defer stop()

	client, err := dial(runCtx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	jobs, err := queue.New(runCtx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer jobs.Close()

	escrow, err := registry.NewEscrow(client, cfg.Escrow())
	if err != nil {
		return err
	}
	signer, err := executor.NewSigner(client, cfg.Executor(), cfg.WorkerKey, cfg.ChainID)
	if err != nil {
		return err
	}
	log.Info("Worker account", "address", signer.From())

	records := history.NewStore(jobs.Client())
	err = worker.New(jobs, escrow, signer, records).Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
