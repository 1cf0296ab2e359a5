package ibgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	// TLS server with a self-signed certificate, same trust boundary as the
	// real local gateway
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())
	return client, server
}

func TestAccounts(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/accounts", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"accountId": "U1234567", "currency": "USD"},
		})
	}))

	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "U1234567", accounts[0].AccountID)
}

func TestPrimaryAccountID_EmptyListIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))

	_, err := client.PrimaryAccountID(context.Background())
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPositions_PageInPath(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/U1234567/positions/2", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"conid": 265598, "ticker": "AAPL", "position": 10.0, "currency": "USD"},
		})
	}))

	positions, err := client.Positions(context.Background(), "U1234567", 2)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(265598), positions[0].Conid)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, 10.0, positions[0].Quantity)
}

func TestMarketSnapshot_EmptyConidsShortCircuits(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	result, err := client.MarketSnapshot(context.Background(), nil, []int{31, 55})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, int64(0), calls.Load())
}

func TestMarketSnapshot_KeyedByConid(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/iserver/marketdata/snapshot", r.URL.Path)
		assert.Equal(t, "265598,8314", r.URL.Query().Get("conids"))
		assert.Equal(t, "31,55", r.URL.Query().Get("fields"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"conid": 265598, "31": "226.01", "55": "AAPL"},
			{"conid": 8314, "31": "168.40", "55": "IBM"},
			{"31": "1.00"}, // no conid, dropped
		})
	}))

	result, err := client.MarketSnapshot(context.Background(), []int64{265598, 8314}, []int{31, 55})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "AAPL", result[265598]["55"])
	assert.Equal(t, "168.40", result[8314]["31"])
}

func TestDailyBars(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/iserver/marketdata/history", r.URL.Path)
		assert.Equal(t, "265598", r.URL.Query().Get("conid"))
		assert.Equal(t, "60d", r.URL.Query().Get("period"))
		assert.Equal(t, "1d", r.URL.Query().Get("bar"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol": "AAPL",
			"data": []map[string]any{
				{"o": 100.0, "h": 105.0, "l": 99.0, "c": 104.0, "t": 1700000000000},
				{"o": 104.0, "h": 110.0, "l": 103.0, "c": 109.0, "t": 1700086400000},
			},
		})
	}))

	bars, err := client.DailyBars(context.Background(), 265598, "60d")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 104.0, bars[0].Close)
	assert.Equal(t, int64(1700086400000), bars[1].Timestamp)
}

func TestLedger_SweepsNumericMetrics(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/U1234567/ledger", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"BASE": {
				"cashbalance": 1234.56,
				"netliquidationvalue": 98765.43,
				"currency": "USD",
				"timestamp": 1763020474000,
				"settledcash": 1200.00,
				"stockmarketvalue": 97530.87,
				"acctcode": "U1234567"
			}
		}`))
	}))

	ledger, err := client.Ledger(context.Background(), "U1234567")
	require.NoError(t, err)

	base, ok := ledger["BASE"]
	require.True(t, ok)
	assert.Equal(t, 1234.56, base.CashBalance)
	assert.Equal(t, 98765.43, base.NetLiquidationValue)
	assert.Equal(t, "USD", base.Currency)
	assert.Equal(t, int64(1763020474000), base.Timestamp)
	assert.Equal(t, 1200.00, base.Metrics["settledcash"])
	assert.Equal(t, 97530.87, base.Metrics["stockmarketvalue"])
	// Non-numeric fields other than currency are not collected
	assert.NotContains(t, base.Metrics, "acctcode")
}

func TestErrorClassification(t *testing.T) {
	t.Run("connection refused is unavailable", func(t *testing.T) {
		// Port from a closed server
		server := httptest.NewTLSServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client := NewClient(url, 2*time.Second, zerolog.Nop())
		_, err := client.Accounts(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("non-2xx is request failed", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no bridge", http.StatusServiceUnavailable)
		}))

		_, err := client.Positions(context.Background(), "U1234567", 0)
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("bad JSON is malformed payload", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway login</html>"))
		}))

		_, err := client.Accounts(context.Background())
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestForward_RelaysStatusAndBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/iserver/secdef/search", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"conid":265598}]`))
	}))

	status, header, body, err := client.Forward(context.Background(), http.MethodGet, "/iserver/secdef/search?symbol=AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.JSONEq(t, `[{"conid":265598}]`, string(body))
}
