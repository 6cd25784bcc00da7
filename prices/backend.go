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

package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// BackendClient talks to the collocated API backend, which fronts the oracle
// with its own remote cache. The worker process only uses the price and
// health endpoints.
type BackendClient struct {
	baseURL string
	client  *http.Client
	log     log.Logger
}

// NewBackendClient creates a client for the backend price facade.
func NewBackendClient(baseURL string, client *http.Client) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log.New("backend", baseURL),
	}
}

// Health probes the backend's health endpoint.
func (c *BackendClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/utils/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("Backend health check failed", "err", err)
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
		return false
	}
	return body.Success && body.Status == "healthy"
}

// Price fetches a cached USD price from the backend. The returned source tag
// identifies the backend's inner tier.
func (c *BackendClient) Price(ctx context.Context, symbol string) (float64, string, error) {
	endpoint := c.baseURL + "/api/price/" + url.PathEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("backend price: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Success  bool    `json:"success"`
		PriceUSD float64 `json:"price_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, "", fmt.Errorf("backend price: %w", err)
	}
	if !body.Success {
		return 0, "", fmt.Errorf("backend price: query for %s unsuccessful", symbol)
	}
	return body.PriceUSD, "cache", nil
}
