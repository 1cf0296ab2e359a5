package marketdata

import (
	"strconv"
	"strings"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
)

// Quote holds the decoded, unit-normalized field values for one conid.
// Pointer fields are nil when upstream omits the field or reports a
// non-numeric value.
type Quote struct {
	Symbol           string
	Name             string
	LastPrice        *float64
	AvgPrice         *float64
	MarketValue      *float64
	UnrealizedPnLPct *float64 // fraction: upstream "252.73" decodes to 2.5273
	ChangePct        *float64 // fraction
	PERatio          *float64
	WeightPct        *float64 // fraction
}

// Decoder translates raw snapshot field mappings using a field table
type Decoder struct {
	table FieldTable
}

// NewDecoder creates a decoder over the given field table
func NewDecoder(table FieldTable) *Decoder {
	if table == nil {
		table = DefaultFieldTable()
	}
	return &Decoder{table: table}
}

// Table returns the decoder's field table
func (d *Decoder) Table() FieldTable {
	return d.table
}

// Decode extracts named values from a raw per-conid field mapping.
// Missing or unparsable values decode to nil, never an error.
func (d *Decoder) Decode(tick ibgateway.TickSnapshot) Quote {
	return Quote{
		Symbol:           d.str(tick, FieldSymbol),
		Name:             d.str(tick, FieldName),
		LastPrice:        d.float(tick, FieldLastPrice),
		AvgPrice:         d.float(tick, FieldAvgPrice),
		MarketValue:      d.float(tick, FieldMarketValue),
		UnrealizedPnLPct: d.float(tick, FieldUnrealizedPnLPct),
		ChangePct:        d.float(tick, FieldChangePct),
		PERatio:          d.float(tick, FieldPERatio),
		WeightPct:        d.float(tick, FieldWeightPct),
	}
}

// str extracts a string-valued field
func (d *Decoder) str(tick ibgateway.TickSnapshot, name string) string {
	spec, ok := d.table[name]
	if !ok {
		return ""
	}
	value, ok := tick[strconv.Itoa(spec.Code)]
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// float extracts a numeric field, applying percentage normalization
// for fields marked Percent in the table.
func (d *Decoder) float(tick ibgateway.TickSnapshot, name string) *float64 {
	spec, ok := d.table[name]
	if !ok {
		return nil
	}

	value, ok := tick[strconv.Itoa(spec.Code)]
	if !ok {
		return nil
	}

	f := ToFloat(value)
	if f == nil {
		return nil
	}

	if spec.Percent {
		scaled := *f / 100.0
		return &scaled
	}
	return f
}

// ToFloat coerces a raw field value to a float.
// Accepts numbers and numeric strings (with thousands separators stripped);
// anything else, including nil, coerces to nil. Never panics.
func ToFloat(value any) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
