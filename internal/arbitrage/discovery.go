// Package arbitrage discovers tradeable market relations and evaluates book
// updates for complement-pair and cross-market mispricing.
package arbitrage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Discovery is the result of one pass over the market list.
type Discovery struct {
	Pairs     []domain.ComplementPair
	Groups    []domain.EquivalenceGroup
	MarketIDs []string
}

// PairDiscovery derives complement pairs and equivalence groups from Gamma
// market metadata.
type PairDiscovery struct {
	lister domain.MarketLister
	logger *slog.Logger
}

// NewPairDiscovery creates a discovery pass over lister's markets.
func NewPairDiscovery(lister domain.MarketLister, logger *slog.Logger) *PairDiscovery {
	return &PairDiscovery{
		lister: lister,
		logger: logger.With(slog.String("component", "pair_discovery")),
	}
}

// Discover lists markets and analyzes them.
func (d *PairDiscovery) Discover(ctx context.Context) (Discovery, error) {
	markets, err := d.lister.ListMarkets(ctx)
	if err != nil {
		return Discovery{}, fmt.Errorf("arbitrage: discover: %w", err)
	}

	out := Analyze(markets)
	d.logger.InfoContext(ctx, "discovery complete",
		slog.Int("markets", len(out.MarketIDs)),
		slog.Int("pairs", len(out.Pairs)),
		slog.Int("groups", len(out.Groups)),
	)
	return out, nil
}

// Analyze extracts ids, pairs and groups from raw market objects. Markets
// with missing metadata contribute what they can and are otherwise skipped.
func Analyze(markets []json.RawMessage) Discovery {
	var out Discovery

	groupKeys := make([]string, 0)
	groups := make(map[string][]string)

	for _, raw := range markets {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil || m == nil {
			continue
		}

		marketID := firstID(m, "id", "marketId")
		if marketID != "" {
			out.MarketIDs = append(out.MarketIDs, marketID)
		}

		if question := firstString(m, "question", "title", "name"); question != "" && marketID != "" {
			key := Normalize(question)
			if _, ok := groups[key]; !ok {
				groupKeys = append(groupKeys, key)
			}
			if !containsString(groups[key], marketID) {
				groups[key] = append(groups[key], marketID)
			}
		}

		if ids := tokenIDs(m); len(ids) >= 2 {
			out.Pairs = append(out.Pairs, domain.ComplementPair{MarketID: ids[0], ComplementID: ids[1]})
		}
	}

	for _, key := range groupKeys {
		if ids := groups[key]; len(ids) > 1 {
			out.Groups = append(out.Groups, domain.EquivalenceGroup{Key: key, MarketIDs: ids})
		}
	}
	return out
}

// Normalize lowercases a question and collapses every run of characters
// outside [a-z0-9] into a single space.
func Normalize(question string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(question), " "))
}

// ParseComplementPairs parses "a:b,c:d". Entries without exactly two
// non-empty ids are ignored.
func ParseComplementPairs(value string) []domain.ComplementPair {
	var out []domain.ComplementPair
	for _, entry := range strings.Split(value, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 2 {
			continue
		}
		a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if a == "" || b == "" {
			continue
		}
		out = append(out, domain.ComplementPair{MarketID: a, ComplementID: b})
	}
	return out
}

// tokenIDs returns the first two outcome token ids found, trying in order:
// yesTokenId+noTokenId, tokens[], outcomes[], clobTokenIds.
func tokenIDs(m map[string]json.RawMessage) []string {
	yes, no := firstID(m, "yesTokenId"), firstID(m, "noTokenId")
	if yes != "" && no != "" {
		return []string{yes, no}
	}

	for _, field := range []string{"tokens", "outcomes"} {
		if ids := objectIDs(m[field]); len(ids) >= 2 {
			return ids[:2]
		}
	}

	if ids := clobTokenIDs(m["clobTokenIds"]); len(ids) >= 2 {
		return ids[:2]
	}
	return nil
}

// objectIDs reads token_id, tokenId or id from each object of an array.
func objectIDs(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var ids []string
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		if id := firstID(obj, "token_id", "tokenId", "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// clobTokenIDs accepts either a JSON array of ids or a string holding one.
func clobTokenIDs(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		raw = []byte(inner)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	out := ids[:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// firstID returns the first key holding a non-empty string or a number.
func firstID(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(m[k], &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
