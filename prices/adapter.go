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

// Package prices implements the layered price lookup used by price triggers:
// a process-local TTL cache in front of the backend's remote cache in front
// of the public oracle. Every quote carries a source tag naming the tier that
// produced it.
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

// ErrUnavailable is returned when every tier failed for a symbol.
var ErrUnavailable = errors.New("prices: all sources failed")

const (
	localCacheTTL      = 15 * time.Second
	httpRequestTimeout = 10 * time.Second
	httpConnectTimeout = 5 * time.Second

	// How long an unhealthy backend stays benched before the adapter probes
	// it again.
	backendReprobeEvery = 60 * time.Second
)

var (
	localHitMeter   = metrics.NewRegisteredMeter("prices/local/hit", nil)
	backendHitMeter = metrics.NewRegisteredMeter("prices/backend/hit", nil)
	directHitMeter  = metrics.NewRegisteredMeter("prices/direct/hit", nil)
	failureMeter    = metrics.NewRegisteredMeter("prices/failure", nil)
)

// health is the backend availability state machine. Unlike a sticky boolean,
// an unhealthy backend is re-probed on a timer so a transient outage heals
// without a process restart.
type health int

const (
	healthUnknown health = iota
	healthHealthy
	healthUnhealthy
)

type cacheEntry struct {
	price  float64
	at     time.Time
	source string
}

// Quote is a priced symbol with the tier tag that served it.
type Quote struct {
	Price  float64
	Source string
}

// Adapter is the three-tier read-through price source.
type Adapter struct {
	feedURL string
	backend *BackendClient // nil when backend integration is off
	client  *http.Client
	known   map[string]struct{} // advertised asset ids, informational

	mu        sync.Mutex
	ttl       time.Duration
	cache     map[string]cacheEntry
	health    health
	lastProbe time.Time

	now func() time.Time
	log log.Logger
}

// NewAdapter creates a price adapter. backend may be nil to disable the
// middle tier. supportedAssets is the advertised oracle asset list; lookups
// outside it still work but are logged.
func NewAdapter(feedURL string, backend *BackendClient, supportedAssets []string) *Adapter {
	known := make(map[string]struct{}, len(supportedAssets))
	for _, asset := range supportedAssets {
		known[SymbolID(asset)] = struct{}{}
	}
	return &Adapter{
		feedURL: feedURL,
		backend: backend,
		client:  NewHTTPClient(),
		known:   known,
		ttl:     localCacheTTL,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
		log:     log.New("module", "prices"),
	}
}

// SetCacheTTL overrides the local cache lifetime. Non-positive values are
// ignored and keep the default.
func (a *Adapter) SetCacheTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	a.mu.Lock()
	a.ttl = ttl
	a.mu.Unlock()
}

// NewHTTPClient returns the HTTP client shared by the oracle tiers: 10s per
// request, 5s to connect.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpRequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: httpConnectTimeout}).DialContext,
		},
	}
}

// Price returns the current USD price for a symbol together with its source
// tag. Tier order: local cache, backend, direct oracle.
func (a *Adapter) Price(ctx context.Context, symbol string) (float64, string, error) {
	key := strings.ToLower(symbol)
	now := a.now()

	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && now.Sub(entry.at) < a.ttl {
		a.mu.Unlock()
		localHitMeter.Mark(1)
		return entry.price, entry.source + "-cached", nil
	}
	a.mu.Unlock()

	id := SymbolID(key)
	if len(a.known) > 0 {
		if _, ok := a.known[id]; !ok {
			a.log.Debug("Symbol outside advertised asset list", "symbol", key, "id", id)
		}
	}

	var (
		price  float64
		source string
		priced bool
	)
	if a.backend != nil && a.backendUsable(ctx, now) {
		if p, inner, err := a.backend.Price(ctx, id); err == nil {
			price, source, priced = p, "backend-"+inner, true
			backendHitMeter.Mark(1)
		} else {
			a.log.Warn("Backend price fetch failed, falling back", "symbol", key, "err", err)
			a.markUnhealthy(now)
		}
	}
	if !priced {
		p, err := a.fetchDirect(ctx, id)
		if err != nil {
			failureMeter.Mark(1)
			return 0, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		price, source = p, "coingecko-direct"
		directHitMeter.Mark(1)
	}

	a.mu.Lock()
	a.cache[key] = cacheEntry{price: price, at: now, source: source}
	a.mu.Unlock()

	a.log.Debug("Price resolved", "symbol", key, "price", price, "source", source)
	return price, source, nil
}

// PriceMany resolves several symbols concurrently. Individual failures are
// logged and omitted from the result.
func (a *Adapter) PriceMany(ctx context.Context, symbols []string) map[string]Quote {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		quotes = make(map[string]Quote, len(symbols))
	)
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			price, source, err := a.Price(ctx, symbol)
			if err != nil {
				a.log.Warn("Price lookup failed", "symbol", symbol, "err", err)
				return
			}
			mu.Lock()
			quotes[symbol] = Quote{Price: price, Source: source}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return quotes
}

// backendUsable decides whether the backend tier should be tried, probing its
// health endpoint when the state is unknown or due for a re-check.
func (a *Adapter) backendUsable(ctx context.Context, now time.Time) bool {
	a.mu.Lock()
	state, last := a.health, a.lastProbe
	a.mu.Unlock()

	switch state {
	case healthHealthy:
		return true
	case healthUnhealthy:
		if now.Sub(last) < backendReprobeEvery {
			return false
		}
	}
	healthy := a.backend.Health(ctx)

	a.mu.Lock()
	a.lastProbe = now
	if healthy {
		a.health = healthHealthy
	} else {
		a.health = healthUnhealthy
	}
	a.mu.Unlock()

	if !healthy {
		a.log.Warn("Backend unhealthy, using direct oracle", "reprobe", backendReprobeEvery)
	}
	return healthy
}

func (a *Adapter) markUnhealthy(now time.Time) {
	a.mu.Lock()
	a.health = healthUnhealthy
	a.lastProbe = now
	a.mu.Unlock()
}

// fetchDirect queries the public price oracle.
func (a *Adapter) fetchDirect(ctx context.Context, id string) (float64, error) {
	endpoint := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", a.feedURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle: unexpected status %d", resp.StatusCode)
	}
	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("oracle: %w", err)
	}
	price, ok := body[id]["usd"]
	if !ok {
		return 0, fmt.Errorf("oracle: no usd price for %s", id)
	}
	return price, nil
}
