package domain

// ComplementPair links two outcome tokens whose prices should sum to 1,
// e.g. the YES and NO tokens of one question.
type ComplementPair struct {
	MarketID     string `json:"marketId"`
	ComplementID string `json:"complementId"`
}

// Contains reports whether id is either leg of the pair.
func (p ComplementPair) Contains(id string) bool {
	return p.MarketID == id || p.ComplementID == id
}

// EquivalenceGroup is a set of markets sharing one normalized question.
// MarketIDs is deduplicated; groups always hold at least two markets.
type EquivalenceGroup struct {
	Key       string   `json:"key"`
	MarketIDs []string `json:"marketIds"`
}

// Contains reports whether id is a member of the group.
func (g EquivalenceGroup) Contains(id string) bool {
	for _, m := range g.MarketIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Position is one holding reported by the positions data API.
type Position struct {
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	CurPrice     float64 `json:"curPrice"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
}
