package ibgateway

import (
	"encoding/json"
	"strings"
)

// Account is one entry from /portfolio/accounts
type Account struct {
	AccountID string `json:"accountId"`
	ID        string `json:"id"`
	Alias     string `json:"accountAlias"`
	Currency  string `json:"currency"`
}

// Position is one raw entry from /portfolio/{accountId}/positions/{page}.
// Only the fields the snapshot pipeline consumes are decoded.
type Position struct {
	Conid        int64   `json:"conid"`
	ContractDesc string  `json:"contractDesc"`
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"position"`
	MktPrice     float64 `json:"mktPrice"`
	MktValue     float64 `json:"mktValue"`
	AvgCost      float64 `json:"avgCost"`
	AvgPrice     float64 `json:"avgPrice"`
	Currency     string  `json:"currency"`
	Name         string  `json:"name"`
	AssetClass   string  `json:"assetClass"`
}

// TickSnapshot is the raw per-conid field mapping from
// /iserver/marketdata/snapshot. Keys are numeric field codes as strings
// ("31", "55", ...); values arrive as strings or numbers depending on field.
type TickSnapshot map[string]any

// Bar is one daily OHLC observation from /iserver/marketdata/history.
// Timestamp is milliseconds since epoch; series are ordered oldest to newest.
type Bar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

// historyResponse is the envelope around the bar series
type historyResponse struct {
	Symbol string `json:"symbol"`
	Data   []Bar  `json:"data"`
}

// AccountMeta is the identity portion of /portfolio/{accountId}/meta
type AccountMeta struct {
	AccountID    string `json:"accountId"`
	ID           string `json:"id"`
	AccountTitle string `json:"accountTitle"`
	DisplayName  string `json:"displayName"`
	Type         string `json:"type"`
	AcctCustType string `json:"acctCustType"`
	Currency     string `json:"currency"`
}

// LedgerEntry is one currency bucket from /portfolio/{accountId}/ledger.
// Beyond the fields decoded explicitly, every numeric field in the bucket is
// collected into Metrics, since the upstream balance schema is open-ended.
type LedgerEntry struct {
	CashBalance         float64
	NetLiquidationValue float64
	Currency            string
	Timestamp           int64
	Metrics             map[string]float64
}

// UnmarshalJSON decodes the known fields and sweeps the rest of the numeric
// fields into the Metrics map.
func (e *LedgerEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Metrics = make(map[string]float64)

	for key, value := range raw {
		var num float64
		if err := json.Unmarshal(value, &num); err == nil {
			switch strings.ToLower(key) {
			case "cashbalance":
				e.CashBalance = num
			case "netliquidationvalue":
				e.NetLiquidationValue = num
			case "timestamp":
				e.Timestamp = int64(num)
			default:
				e.Metrics[strings.ToLower(key)] = num
			}
			continue
		}

		if strings.ToLower(key) == "currency" {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				e.Currency = s
			}
		}
	}

	return nil
}
