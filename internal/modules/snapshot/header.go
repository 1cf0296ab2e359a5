package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// HeaderResolver derives the portfolio-level summary from the account
// metadata and ledger endpoints.
type HeaderResolver struct {
	client   GatewayClient
	location *time.Location
	log      zerolog.Logger
}

// NewHeaderResolver creates a header resolver.
// timezone is the fixed financial-reporting timezone used for the
// statement period, e.g. "America/New_York".
func NewHeaderResolver(client GatewayClient, timezone string, log zerolog.Logger) (*HeaderResolver, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reporting timezone %q: %w", timezone, err)
	}

	return &HeaderResolver{
		client:   client,
		location: location,
		log:      log.With().Str("component", "header_resolver").Logger(),
	}, nil
}

// Resolve builds the snapshot header for one account.
// The ledger's "BASE" bucket is authoritative for cash, net liquidation,
// currency, and timestamp; metadata supplies identity fields only.
func (r *HeaderResolver) Resolve(ctx context.Context, accountID string) (*Header, error) {
	meta, err := r.client.AccountMeta(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account metadata for %s: %w", accountID, err)
	}

	ledger, err := r.client.Ledger(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger for %s: %w", accountID, err)
	}

	base, ok := ledger["BASE"]
	if !ok {
		return nil, fmt.Errorf("%w: ledger for %s has no BASE bucket", ibgateway.ErrMalformedPayload, accountID)
	}

	ownerName := meta.AccountTitle
	if ownerName == "" {
		ownerName = meta.DisplayName
	}

	account := meta.AccountID
	if account == "" {
		account = meta.ID
	}
	if account == "" {
		account = accountID
	}

	currency := base.Currency
	if currency == "" {
		currency = meta.Currency
	}

	period, generated := r.formatPeriod(base.Timestamp)

	header := &Header{
		Period:         period,
		Generated:      generated,
		OwnerName:      ownerName,
		Account:        account,
		CustomerType:   meta.Type,
		AccountType:    meta.AcctCustType,
		BaseCurrency:   currency,
		Cash:           base.CashBalance,
		PortfolioValue: base.NetLiquidationValue,
		Metrics:        base.Metrics,
	}

	r.log.Debug().
		Str("account", account).
		Str("period", period).
		Float64("net_liquidation", base.NetLiquidationValue).
		Msg("Resolved snapshot header")

	return header, nil
}

// formatPeriod converts a ledger millisecond timestamp to the statement
// period (date only) and generated display string, both in the reporting
// timezone. A missing or non-positive timestamp resolves both to empty
// rather than defaulting to now, so a stale snapshot is never mislabeled
// as current.
func (r *HeaderResolver) formatPeriod(tsMillis int64) (string, string) {
	if tsMillis <= 0 {
		return "", ""
	}

	t := time.UnixMilli(tsMillis).In(r.location)

	period := t.Format("01/02/2006")
	generated := t.Format("2006-01-02, 15:04:05 MST")
	return period, generated
}
