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

// Package config assembles the runtime configuration from CLI flags, each
// backed by an environment variable. The struct is passed explicitly to
// every constructor; there is no process-global config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// Mode selects which validation rules apply: the scheduler never signs and
// the worker never talks to the price feed.
type Mode int

const (
	ModeScheduler Mode = iota
	ModeWorker
)

// Flags is the full flag set shared by both commands. Every flag reads its
// default from the environment.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "rpc",
		Usage:   "HTTP(S) endpoint of the chain RPC node",
		Value:   "https://rpc.api.moonbase.moonbeam.network",
		EnvVars: []string{"MOONBASE_RPC"},
	},
	&cli.Uint64Flag{
		Name:    "chainid",
		Usage:   "Chain id used for transaction signing",
		Value:   1287,
		EnvVars: []string{"CHAIN_ID"},
	},
	&cli.StringFlag{
		Name:    "registry",
		Usage:   "WorkflowRegistry contract address",
		EnvVars: []string{"WORKFLOW_REGISTRY_ADDRESS"},
	},
	&cli.StringFlag{
		Name:    "executor",
		Usage:   "ActionExecutor contract address",
		EnvVars: []string{"ACTION_EXECUTOR_ADDRESS"},
	},
	&cli.StringFlag{
		Name:    "escrow",
		Usage:   "FeeEscrow contract address",
		EnvVars: []string{"FEE_ESCROW_ADDRESS"},
	},
	&cli.StringFlag{
		Name:    "workerkey",
		Usage:   "Hex private key of the execution worker account",
		EnvVars: []string{"WORKER_PRIVATE_KEY", "RELAYER_PRIVATE_KEY"},
	},
	&cli.StringFlag{
		Name:    "redis",
		Usage:   "Redis connection URL for the job queue and history",
		Value:   "redis://localhost:6379/0",
		EnvVars: []string{"REDIS_URL"},
	},
	&cli.IntFlag{
		Name:    "cachettl",
		Usage:   "Local price cache time to live in seconds",
		Value:   15,
		EnvVars: []string{"REDIS_CACHE_TTL"},
	},
	&cli.StringFlag{
		Name:    "pricefeed",
		Usage:   "Direct price oracle endpoint",
		Value:   "https://api.coingecko.com/api/v3/simple/price",
		EnvVars: []string{"PRICE_FEED_URL"},
	},
	&cli.StringFlag{
		Name:    "assets",
		Usage:   "Comma separated supported asset symbols",
		Value:   "dot,glmr,eth,btc,astr,matic",
		EnvVars: []string{"SUPPORTED_ASSETS"},
	},
	&cli.StringFlag{
		Name:    "backend",
		Usage:   "Backend API base URL for cached prices",
		EnvVars: []string{"BACKEND_API_URL"},
	},
	&cli.BoolFlag{
		Name:    "usebackend",
		Usage:   "Prefer the backend price cache over the direct oracle",
		EnvVars: []string{"USE_BACKEND_INTEGRATION"},
	},
	&cli.IntFlag{
		Name:    "poll",
		Usage:   "Scheduler sweep interval in seconds",
		Value:   10,
		EnvVars: []string{"POLL_INTERVAL"},
	},
	&cli.IntFlag{
		Name:    "concurrency",
		Usage:   "Maximum concurrent trigger evaluations per sweep",
		Value:   5,
		EnvVars: []string{"MAX_CONCURRENT_EXECUTIONS"},
	},
	&cli.Uint64Flag{
		Name:    "scanwindow",
		Usage:   "Trailing block window for wallet event scans",
		Value:   100,
		EnvVars: []string{"EVENT_SCAN_WINDOW"},
	},
	&cli.IntFlag{
		Name:    "verbosity",
		Usage:   "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:   3,
		EnvVars: []string{"LOG_VERBOSITY"},
	},
}

// Config is the assembled runtime configuration.
type Config struct {
	RPCURL  string
	ChainID uint64

	RegistryAddress string
	ExecutorAddress string
	EscrowAddress   string
	WorkerKey       string

	RedisURL string
	CacheTTL time.Duration

	PriceFeedURL    string
	SupportedAssets []string
	BackendURL      string
	UseBackend      bool

	PollInterval  time.Duration
	MaxConcurrent int
	ScanWindow    uint64
	Verbosity     int
}

// FromCLI reads the flag set into a Config.
func FromCLI(ctx *cli.Context) *Config {
	var assets []string
	for _, s := range strings.Split(ctx.String("assets"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			assets = append(assets, strings.ToLower(s))
		}
	}
	return &Config{
		RPCURL:          ctx.String("rpc"),
		ChainID:         ctx.Uint64("chainid"),
		RegistryAddress: ctx.String("registry"),
		ExecutorAddress: ctx.String("executor"),
		EscrowAddress:   ctx.String("escrow"),
		WorkerKey:       ctx.String("workerkey"),
		RedisURL:        ctx.String("redis"),
		CacheTTL:        time.Duration(ctx.Int("cachettl")) * time.Second,
		PriceFeedURL:    ctx.String("pricefeed"),
		SupportedAssets: assets,
		BackendURL:      ctx.String("backend"),
		UseBackend:      ctx.Bool("usebackend"),
		PollInterval:    time.Duration(ctx.Int("poll")) * time.Second,
		MaxConcurrent:   ctx.Int("concurrency"),
		ScanWindow:      ctx.Uint64("scanwindow"),
		Verbosity:       ctx.Int("verbosity"),
	}
}

// Validate checks the configuration for the selected mode. Any error here is
// fatal at startup; nothing is validated lazily.
func (c *Config) Validate(mode Mode) error {
	if c.RPCURL == "" {
		return errors.New("missing RPC endpoint")
	}
	if c.ChainID == 0 {
		return errors.New("missing chain id")
	}
	if err := checkAddress("registry", c.RegistryAddress); err != nil {
		return err
	}
	if c.RedisURL == "" {
		return errors.New("missing redis url")
	}
	switch mode {
	case ModeScheduler:
		if c.PriceFeedURL == "" {
			return errors.New("missing price feed url")
		}
		if c.UseBackend && c.BackendURL == "" {
			return errors.New("backend integration enabled without a backend url")
		}
		if c.PollInterval <= 0 {
			return errors.New("poll interval must be positive")
		}
		if c.MaxConcurrent <= 0 {
			return errors.New("concurrency must be positive")
		}
	case ModeWorker:
		if err := checkAddress("executor", c.ExecutorAddress); err != nil {
			return err
		}
		if err := checkAddress("escrow", c.EscrowAddress); err != nil {
			return err
		}
		if c.WorkerKey == "" {
			return errors.New("missing worker private key")
		}
	default:
		return fmt.Errorf("unknown mode %d", mode)
	}
	return nil
}

// Registry returns the parsed registry contract address.
func (c *Config) Registry() common.Address { return common.HexToAddress(c.RegistryAddress) }

// Executor returns the parsed executor contract address.
func (c *Config) Executor() common.Address { return common.HexToAddress(c.ExecutorAddress) }

// Escrow returns the parsed escrow contract address.
func (c *Config) Escrow() common.Address { return common.HexToAddress(c.EscrowAddress) }

func checkAddress(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("missing %s contract address", name)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid %s contract address %q", name, addr)
	}
	return nil
}
