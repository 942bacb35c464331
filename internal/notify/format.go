package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Title renders a short headline for evt.
func Title(evt domain.Event) string {
	title := "polyarb: " + strings.ReplaceAll(string(evt.Type), "_", " ")
	if evt.MarketID != "" {
		title += " (" + evt.MarketID + ")"
	}
	return title
}

// Body renders the payload as sorted key=value lines.
func Body(evt domain.Event) string {
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, evt.Payload[k])
	}
	if !evt.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "at=%s", evt.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return strings.TrimRight(b.String(), "\n")
}
