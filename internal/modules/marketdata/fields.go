// Package marketdata decodes raw market-data snapshot payloads into named,
// unit-normalized values.
package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Well-known field names used by the snapshot pipeline
const (
	FieldLastPrice        = "last_price"
	FieldSymbol           = "symbol"
	FieldMarketValue      = "market_value"
	FieldAvgPrice         = "avg_price"
	FieldUnrealizedPnL    = "unrealized_pnl"
	FieldUnrealizedPnLPct = "unrealized_pnl_pct"
	FieldChangePct        = "change_pct"
	FieldName             = "name"
	FieldPERatio          = "pe_ratio"
	FieldWeightPct        = "weight_pct"
)

// FieldSpec describes one upstream field code.
// Percent marks fields reported on a 0-100 scale that are stored as
// fractions (divided by 100 on decode).
type FieldSpec struct {
	Code    int  `json:"code"`
	Percent bool `json:"percent,omitempty"`
}

// FieldTable maps field names to upstream numeric field codes.
// The upstream code registry evolves, so the table is data, not logic:
// it can be replaced wholesale from a JSON file.
type FieldTable map[string]FieldSpec

// DefaultFieldTable returns the built-in field code registry
func DefaultFieldTable() FieldTable {
	return FieldTable{
		FieldLastPrice:        {Code: 31},
		FieldSymbol:           {Code: 55},
		FieldMarketValue:      {Code: 73},
		FieldAvgPrice:         {Code: 74},
		FieldUnrealizedPnL:    {Code: 75},
		FieldUnrealizedPnLPct: {Code: 80, Percent: true},
		FieldChangePct:        {Code: 83, Percent: true},
		FieldName:             {Code: 7051},
		FieldPERatio:          {Code: 7290},
		FieldWeightPct:        {Code: 7639, Percent: true},
	}
}

// LoadFieldTable reads a field table from a JSON file.
// An empty path returns the default table.
func LoadFieldTable(path string) (FieldTable, error) {
	if path == "" {
		return DefaultFieldTable(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field table %s: %w", path, err)
	}

	var table FieldTable
	if err := json.Unmarshal(content, &table); err != nil {
		return nil, fmt.Errorf("failed to parse field table %s: %w", path, err)
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("field table %s is empty", path)
	}

	return table, nil
}

// Codes returns all field codes in ascending order, suitable for the
// batched snapshot request.
func (t FieldTable) Codes() []int {
	codes := make([]int, 0, len(t))
	for _, spec := range t {
		codes = append(codes, spec.Code)
	}
	sort.Ints(codes)
	return codes
}
