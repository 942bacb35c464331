package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// defaultMarketCount is how many Gamma markets are used when none are
// configured.
const defaultMarketCount = 25

// MarketSelector picks the initial market universe.
type MarketSelector struct {
	lister domain.MarketLister
	logger *slog.Logger
}

// NewMarketSelector creates a selector backed by lister.
func NewMarketSelector(lister domain.MarketLister, logger *slog.Logger) *MarketSelector {
	return &MarketSelector{
		lister: lister,
		logger: logger.With(slog.String("component", "market_selector")),
	}
}

// Select returns preferred when it is non-empty, else the ids of the first
// Gamma markets.
func (s *MarketSelector) Select(ctx context.Context, preferred []string) ([]string, error) {
	if len(preferred) > 0 {
		s.logger.InfoContext(ctx, "using configured market ids", slog.Int("count", len(preferred)))
		return preferred, nil
	}

	markets, err := s.lister.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	if len(markets) > defaultMarketCount {
		markets = markets[:defaultMarketCount]
	}

	ids := make([]string, 0, len(markets))
	for _, raw := range markets {
		if id := marketID(raw); id != "" {
			ids = append(ids, id)
		}
	}
	s.logger.InfoContext(ctx, "selected default markets", slog.Int("count", len(ids)))
	return ids, nil
}

// marketID reads "id" as a string or a number.
func marketID(raw json.RawMessage) string {
	var m struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &m); err != nil || len(m.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(m.ID, &n); err == nil {
		return n.String()
	}
	return ""
}

// MergeUniverse joins id lists in order, dropping blanks and duplicates.
func MergeUniverse(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, id := range list {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// PairMarketIDs flattens pairs into their leg ids.
func PairMarketIDs(pairs []domain.ComplementPair) []string {
	out := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out, p.MarketID, p.ComplementID)
	}
	return out
}
