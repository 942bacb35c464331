// Package feed normalizes raw order-book feed frames and pumps them from the
// CLOB WebSocket into the market data service.
package feed

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Kind classifies a feed message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSnapshot
	KindDelta
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Message is a normalized book message. Exactly one of Snapshot or Delta is
// meaningful, according to Kind.
type Message struct {
	Kind     Kind
	Snapshot domain.BookSnapshot
	Delta    domain.BookDelta
}

// MarketID returns the market the message applies to.
func (m Message) MarketID() string {
	if m.Kind == KindDelta {
		return m.Delta.MarketID
	}
	return m.Snapshot.MarketID
}

// ParseFrame decodes one WebSocket frame. A frame holds either a single JSON
// object or an array of them. Anything that is not a recognizable book
// snapshot or delta is dropped.
func ParseFrame(raw []byte) []Message {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]Message, 0, len(items))
		for _, item := range items {
			if msg, ok := Parse(item); ok {
				out = append(out, msg)
			}
		}
		return out
	}

	if msg, ok := Parse(raw); ok {
		return []Message{msg}
	}
	return nil
}

// Parse decodes a single JSON object into a Message.
//
// Classification: the message type is "type", falling back to "event". A
// snapshot is type "book_snapshot" or channel "book" with type "snapshot"; a
// delta is "book_delta" or channel "book" with type "delta". The market id is
// "marketId", falling back to "market".
func Parse(raw []byte) (Message, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Message{}, false
	}

	typ := stringField(obj, "type")
	if typ == "" {
		typ = stringField(obj, "event")
	}
	channel := stringField(obj, "channel")

	kind := KindUnknown
	switch {
	case typ == "book_snapshot" || (channel == "book" && typ == "snapshot"):
		kind = KindSnapshot
	case typ == "book_delta" || (channel == "book" && typ == "delta"):
		kind = KindDelta
	}
	if kind == KindUnknown {
		return Message{}, false
	}

	marketID := stringField(obj, "marketId")
	if marketID == "" {
		marketID = stringField(obj, "market")
	}
	if marketID == "" {
		return Message{}, false
	}

	if kind == KindSnapshot {
		return Message{
			Kind: KindSnapshot,
			Snapshot: domain.BookSnapshot{
				MarketID: marketID,
				Bids:     ParseLevels(obj["bids"]),
				Asks:     ParseLevels(obj["asks"]),
			},
		}, true
	}

	side := domain.BookSide(stringField(obj, "side"))
	price, okPrice := number(obj["price"])
	size, okSize := number(obj["size"])
	if !side.Valid() || !okPrice || !okSize {
		return Message{}, false
	}
	return Message{
		Kind: KindDelta,
		Delta: domain.BookDelta{
			MarketID: marketID,
			Side:     side,
			Price:    price,
			Size:     size,
		},
	}, true
}

// ParseLevels decodes a list of levels given either as [price, size] tuples
// or as {"price": p, "size": s} objects. Numbers may be JSON numbers or
// numeric strings. Entries whose price or size is not a finite number are
// dropped.
func ParseLevels(raw json.RawMessage) []domain.PriceLevel {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]domain.PriceLevel, 0, len(items))
	for _, item := range items {
		price, size, ok := parseLevel(item)
		if ok {
			out = append(out, domain.PriceLevel{Price: price, Size: size})
		}
	}
	return out
}

func parseLevel(raw json.RawMessage) (float64, float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, 0, false
	}

	var p, s json.RawMessage
	switch trimmed[0] {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(trimmed, &tuple); err != nil || len(tuple) < 2 {
			return 0, 0, false
		}
		p, s = tuple[0], tuple[1]
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, 0, false
		}
		p, s = obj["price"], obj["size"]
	default:
		return 0, 0, false
	}

	price, ok := number(p)
	if !ok {
		return 0, 0, false
	}
	size, ok := number(s)
	if !ok {
		return 0, 0, false
	}
	return price, size, true
}

// number decodes a JSON number or numeric string into a finite float.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
