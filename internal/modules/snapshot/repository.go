package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/database"
)

// ErrNotFound indicates a lookup or delete on a nonexistent snapshot id
var ErrNotFound = errors.New("snapshot not found")

// Repository handles snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Save inserts the snapshot header, positions, and metrics as one atomic
// unit and returns the new snapshot id. Partial snapshots are never
// visible to readers.
func (r *Repository) Save(snap *Snapshot) (int64, error) {
	var id int64

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO snapshots
			(account_id, account_name, account_type, customer_type, base_currency,
			 cash_balance, net_liquidation, period, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.Header.Account,
			snap.Header.OwnerName,
			snap.Header.AccountType,
			snap.Header.CustomerType,
			snap.Header.BaseCurrency,
			snap.Header.Cash,
			snap.Header.PortfolioValue,
			snap.Header.Period,
			snap.Header.Generated,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot header: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get snapshot id: %w", err)
		}

		posStmt, err := tx.Prepare(`INSERT INTO snapshot_positions
			(snapshot_id, conid, symbol, name, quantity, last_price, avg_price,
			 market_value, unrealized_pnl_pct, change_pct, pe_ratio, weight_pct,
			 return_1m, return_2m, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare position insert: %w", err)
		}
		defer posStmt.Close()

		for _, row := range snap.Positions {
			if _, err := posStmt.Exec(
				id, row.Conid, row.Symbol, nullString(row.Name), row.Quantity,
				row.LastPrice, row.AvgCost, row.MarketValue,
				row.UnrealizedPnLPct, row.DailyChangePct, row.PERatio, row.WeightPct,
				row.Perf30D, row.Perf60D, nullString(row.Currency),
			); err != nil {
				return fmt.Errorf("failed to insert position %s: %w", row.Symbol, err)
			}
		}

		if len(snap.Header.Metrics) > 0 {
			metricStmt, err := tx.Prepare(`INSERT INTO snapshot_metrics
				(snapshot_id, name, value) VALUES (?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("failed to prepare metric insert: %w", err)
			}
			defer metricStmt.Close()

			// Deterministic insert order for stable reads
			names := make([]string, 0, len(snap.Header.Metrics))
			for name := range snap.Header.Metrics {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				if _, err := metricStmt.Exec(id, name, snap.Header.Metrics[name]); err != nil {
					return fmt.Errorf("failed to insert metric %s: %w", name, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Info().
		Int64("id", id).
		Str("account", snap.Header.Account).
		Int("positions", len(snap.Positions)).
		Msg("Saved snapshot")

	return id, nil
}

// Get returns one snapshot with its positions and metrics
func (r *Repository) Get(id int64) (*Snapshot, error) {
	snap := &Snapshot{ID: id}

	err := r.db.QueryRow(`SELECT account_id, account_name, account_type, customer_type,
		base_currency, cash_balance, net_liquidation, period, generated_at, created_at
		FROM snapshots WHERE id = ?`, id).Scan(
		&snap.Header.Account,
		&snap.Header.OwnerName,
		&snap.Header.AccountType,
		&snap.Header.CustomerType,
		&snap.Header.BaseCurrency,
		&snap.Header.Cash,
		&snap.Header.PortfolioValue,
		&snap.Header.Period,
		&snap.Header.Generated,
		&snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %d: %w", id, err)
	}

	if err := r.loadPositions(snap); err != nil {
		return nil, err
	}
	if err := r.loadMetrics(snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// List returns all snapshots in insertion order, fully loaded
func (r *Repository) List() ([]Snapshot, error) {
	rows, err := r.db.Query(`SELECT id, account_id, account_name, account_type, customer_type,
		base_currency, cash_balance, net_liquidation, period, generated_at, created_at
		FROM snapshots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(
			&snap.ID,
			&snap.Header.Account,
			&snap.Header.OwnerName,
			&snap.Header.AccountType,
			&snap.Header.CustomerType,
			&snap.Header.BaseCurrency,
			&snap.Header.Cash,
			&snap.Header.PortfolioValue,
			&snap.Header.Period,
			&snap.Header.Generated,
			&snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	for i := range snapshots {
		if err := r.loadPositions(&snapshots[i]); err != nil {
			return nil, err
		}
		if err := r.loadMetrics(&snapshots[i]); err != nil {
			return nil, err
		}
	}

	return snapshots, nil
}

// Delete removes a snapshot; positions and metrics cascade
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.log.Info().Int64("id", id).Msg("Deleted snapshot")
	return nil
}

// loadPositions fills the snapshot's position rows in insertion order
func (r *Repository) loadPositions(snap *Snapshot) error {
	rows, err := r.db.Query(`SELECT conid, symbol, name, quantity, last_price, avg_price,
		market_value, unrealized_pnl_pct, change_pct, pe_ratio, weight_pct,
		return_1m, return_2m, currency
		FROM snapshot_positions WHERE snapshot_id = ? ORDER BY id`, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to query positions for snapshot %d: %w", snap.ID, err)
	}
	defer rows.Close()

	snap.Positions = []PositionRow{}
	for rows.Next() {
		var row PositionRow
		var name, currency sql.NullString
		if err := rows.Scan(
			&row.Conid, &row.Symbol, &name, &row.Quantity,
			&row.LastPrice, &row.AvgCost, &row.MarketValue,
			&row.UnrealizedPnLPct, &row.DailyChangePct, &row.PERatio, &row.WeightPct,
			&row.Perf30D, &row.Perf60D, &currency,
		); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}
		row.Name = name.String
		row.Currency = currency.String
		snap.Positions = append(snap.Positions, row)
	}
	return rows.Err()
}

// loadMetrics fills the snapshot's account-level metrics map
func (r *Repository) loadMetrics(snap *Snapshot) error {
	rows, err := r.db.Query(
		"SELECT name, value FROM snapshot_metrics WHERE snapshot_id = ?", snap.ID)
	if err != nil {
		return fmt.Errorf("failed to query metrics for snapshot %d: %w", snap.ID, err)
	}
	defer rows.Close()

	metrics := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[name] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(metrics) > 0 {
		snap.Header.Metrics = metrics
	}
	return nil
}

// nullString maps "" to NULL for nullable text columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
