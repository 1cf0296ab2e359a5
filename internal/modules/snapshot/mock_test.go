package snapshot

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// mockGateway is a testify mock of the upstream client surface
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) PrimaryAccountID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Positions(ctx context.Context, accountID string, page int) ([]ibgateway.Position, error) {
	args := m.Called(ctx, accountID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ibgateway.Position), args.Error(1)
}

func (m *mockGateway) MarketSnapshot(ctx context.Context, conids []int64, fieldIDs []int) (map[int64]ibgateway.TickSnapshot, error) {
	args := m.Called(ctx, conids, fieldIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]ibgateway.TickSnapshot), args.Error(1)
}

func (m *mockGateway) DailyBars(ctx context.Context, conid int64, period string) ([]ibgateway.Bar, error) {
	args := m.Called(ctx, conid, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ibgateway.Bar), args.Error(1)
}

func (m *mockGateway) AccountMeta(ctx context.Context, accountID string) (*ibgateway.AccountMeta, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ibgateway.AccountMeta), args.Error(1)
}

func (m *mockGateway) Ledger(ctx context.Context, accountID string) (map[string]ibgateway.LedgerEntry, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]ibgateway.LedgerEntry), args.Error(1)
}

// ascendingBars builds a daily close series oldest to newest
func ascendingBars(closes ...float64) []ibgateway.Bar {
	bars := make([]ibgateway.Bar, len(closes))
	for i, c := range closes {
		bars[i] = ibgateway.Bar{Close: c, Timestamp: int64(i) * 86400000}
	}
	return bars
}
