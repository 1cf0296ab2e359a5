package snapshot

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

func newTestResolver(t *testing.T, gw *mockGateway) *HeaderResolver {
	t.Helper()
	resolver, err := NewHeaderResolver(gw, "America/New_York", zerolog.Nop())
	require.NoError(t, err)
	return resolver
}

func TestResolve_HappyPath(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U1234567").Return(&ibgateway.AccountMeta{
		AccountID:    "U1234567",
		AccountTitle: "Jane Investor",
		Type:         "INDIVIDUAL",
		AcctCustType: "IRA",
		Currency:     "EUR",
	}, nil)

	gw.On("Ledger", ctx, "U1234567").Return(map[string]ibgateway.LedgerEntry{
		"BASE": {
			CashBalance:         1234.56,
			NetLiquidationValue: 98765.43,
			Currency:            "USD",
			// 2025-11-13 02:54:34 EST
			Timestamp: 1763020474000,
			Metrics:   map[string]float64{"settledcash": 1200},
		},
	}, nil)

	header, err := newTestResolver(t, gw).Resolve(ctx, "U1234567")
	require.NoError(t, err)

	assert.Equal(t, "Jane Investor", header.OwnerName)
	assert.Equal(t, "U1234567", header.Account)
	assert.Equal(t, "INDIVIDUAL", header.CustomerType)
	assert.Equal(t, "IRA", header.AccountType)
	// Ledger currency is authoritative over metadata
	assert.Equal(t, "USD", header.BaseCurrency)
	assert.Equal(t, 1234.56, header.Cash)
	assert.Equal(t, 98765.43, header.PortfolioValue)
	assert.Equal(t, 1200.0, header.Metrics["settledcash"])
}

func TestResolve_TimestampInReportingTimezone(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U1").Return(&ibgateway.AccountMeta{AccountID: "U1"}, nil)
	gw.On("Ledger", ctx, "U1").Return(map[string]ibgateway.LedgerEntry{
		// 2025-11-13T07:54:34Z = 02:54:34 EST the same day
		"BASE": {Timestamp: 1763020474000},
	}, nil)

	header, err := newTestResolver(t, gw).Resolve(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, "11/13/2025", header.Period)
	assert.Equal(t, "2025-11-13, 02:54:34 EST", header.Generated)
}

func TestResolve_TimezoneNotUTC(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U1").Return(&ibgateway.AccountMeta{AccountID: "U1"}, nil)
	gw.On("Ledger", ctx, "U1").Return(map[string]ibgateway.LedgerEntry{
		// 2025-06-02T01:30:00Z is still 2025-06-01 in New York (EDT)
		"BASE": {Timestamp: 1748827800000},
	}, nil)

	header, err := newTestResolver(t, gw).Resolve(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, "06/01/2025", header.Period)
	assert.Contains(t, header.Generated, "EDT")
}

func TestResolve_ZeroTimestampYieldsEmptyPeriod(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U1").Return(&ibgateway.AccountMeta{AccountID: "U1"}, nil)
	gw.On("Ledger", ctx, "U1").Return(map[string]ibgateway.LedgerEntry{
		"BASE": {CashBalance: 10, Timestamp: 0},
	}, nil)

	header, err := newTestResolver(t, gw).Resolve(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, "", header.Period)
	assert.Equal(t, "", header.Generated)
}

func TestResolve_MissingBaseBucket(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U1").Return(&ibgateway.AccountMeta{AccountID: "U1"}, nil)
	gw.On("Ledger", ctx, "U1").Return(map[string]ibgateway.LedgerEntry{
		"USD": {CashBalance: 10},
	}, nil)

	_, err := newTestResolver(t, gw).Resolve(ctx, "U1")
	assert.ErrorIs(t, err, ibgateway.ErrMalformedPayload)
}

func TestResolve_IdentityFallbacks(t *testing.T) {
	gw := &mockGateway{}
	ctx := context.Background()

	gw.On("AccountMeta", ctx, "U9").Return(&ibgateway.AccountMeta{
		DisplayName: "Display Name",
		Currency:    "CHF",
	}, nil)
	gw.On("Ledger", ctx, "U9").Return(map[string]ibgateway.LedgerEntry{
		"BASE": {},
	}, nil)

	header, err := newTestResolver(t, gw).Resolve(ctx, "U9")
	require.NoError(t, err)

	assert.Equal(t, "Display Name", header.OwnerName)
	// Falls back to the requested account id when metadata omits both ids
	assert.Equal(t, "U9", header.Account)
	// Metadata currency backs up a missing ledger currency
	assert.Equal(t, "CHF", header.BaseCurrency)
}

func TestNewHeaderResolver_InvalidTimezone(t *testing.T) {
	_, err := NewHeaderResolver(&mockGateway{}, "Mars/Olympus", zerolog.Nop())
	assert.Error(t, err)
}
