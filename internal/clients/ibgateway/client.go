// Package ibgateway provides a client for the Interactive Brokers Client
// Portal Gateway running on localhost.
package ibgateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client for the IB Client Portal Gateway REST API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new gateway client.
// TLS certificate verification is disabled: the local gateway serves a
// self-signed certificate, an accepted trust boundary for a localhost hop.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: transport},
		log:     log.With().Str("client", "ibgateway").Logger(),
	}
}

// get issues a GET request and decodes the JSON body into out.
// Transport failures map to ErrUnavailable, non-2xx statuses to
// ErrRequestFailed, undecodable bodies to ErrMalformedPayload.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", ErrRequestFailed, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, path, err)
	}

	return nil
}

// Accounts fetches the account descriptors from /portfolio/accounts
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "/portfolio/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// PrimaryAccountID returns the first account's identifier
func (c *Client) PrimaryAccountID(ctx context.Context) (string, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: no accounts returned from /portfolio/accounts", ErrMalformedPayload)
	}

	id := accounts[0].AccountID
	if id == "" {
		id = accounts[0].ID
	}
	return id, nil
}

// Positions fetches one page of positions for an account.
// An empty page signals the end of pagination; the caller drives the loop.
func (c *Client) Positions(ctx context.Context, accountID string, page int) ([]Position, error) {
	path := fmt.Sprintf("/portfolio/%s/positions/%d", accountID, page)

	var positions []Position
	if err := c.get(ctx, path, nil, &positions); err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("account", accountID).
		Int("page", page).
		Int("count", len(positions)).
		Msg("Fetched positions page")

	return positions, nil
}

// MarketSnapshot fetches point-in-time field values for a batch of conids.
// The result is keyed by conid. An empty conid list short-circuits to an
// empty map without a network call.
func (c *Client) MarketSnapshot(ctx context.Context, conids []int64, fieldIDs []int) (map[int64]TickSnapshot, error) {
	if len(conids) == 0 {
		return map[int64]TickSnapshot{}, nil
	}

	conidStrs := make([]string, len(conids))
	for i, id := range conids {
		conidStrs[i] = strconv.FormatInt(id, 10)
	}
	fieldStrs := make([]string, len(fieldIDs))
	for i, id := range fieldIDs {
		fieldStrs[i] = strconv.Itoa(id)
	}

	query := url.Values{}
	query.Set("conids", strings.Join(conidStrs, ","))
	query.Set("fields", strings.Join(fieldStrs, ","))

	var items []TickSnapshot
	if err := c.get(ctx, "/iserver/marketdata/snapshot", query, &items); err != nil {
		return nil, err
	}

	byConid := make(map[int64]TickSnapshot, len(items))
	for _, item := range items {
		conid, ok := conidFromTick(item)
		if !ok {
			continue
		}
		byConid[conid] = item
	}

	c.log.Debug().
		Int("requested", len(conids)).
		Int("returned", len(byConid)).
		Msg("Fetched market snapshot")

	return byConid, nil
}

// DailyBars fetches the daily bar history for one conid.
// period is the upstream lookback window, e.g. "60d".
func (c *Client) DailyBars(ctx context.Context, conid int64, period string) ([]Bar, error) {
	query := url.Values{}
	query.Set("conid", strconv.FormatInt(conid, 10))
	query.Set("period", period)
	query.Set("bar", "1d")

	var resp historyResponse
	if err := c.get(ctx, "/iserver/marketdata/history", query, &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// AccountMeta fetches identity metadata for an account
func (c *Client) AccountMeta(ctx context.Context, accountID string) (*AccountMeta, error) {
	var meta AccountMeta
	if err := c.get(ctx, fmt.Sprintf("/portfolio/%s/meta", accountID), nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Ledger fetches the per-currency balance breakdown for an account.
// The "BASE" bucket is the consolidated base-currency view.
func (c *Client) Ledger(ctx context.Context, accountID string) (map[string]LedgerEntry, error) {
	var ledger map[string]LedgerEntry
	if err := c.get(ctx, fmt.Sprintf("/portfolio/%s/ledger", accountID), nil, &ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Forward relays an arbitrary request to the gateway and returns the raw
// response. Used by the passthrough proxy routes.
func (c *Client) Forward(ctx context.Context, method, pathAndQuery string, body io.Reader) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to build forwarded request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, pathAndQuery, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, pathAndQuery, err)
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

// conidFromTick extracts the conid from a raw snapshot item.
// The gateway reports it as a JSON number, but tolerate strings too.
func conidFromTick(tick TickSnapshot) (int64, bool) {
	raw, ok := tick["conid"]
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
