package s3blob

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	fail    bool
}

func (m *memWriter) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("bucket unavailable")
	}
	if m.objects == nil {
		m.objects = map[string]string{}
		m.types = map[string]string{}
	}
	m.objects[key] = string(body)
	m.types[key] = contentType
	return nil
}

func newTestArchiver(w *memWriter, batch int) *EventArchiver {
	a := NewEventArchiver(ArchiverConfig{Prefix: "polyarb", BatchSize: batch}, w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return a
}

func TestEventArchiver_FlushesFullBatch(t *testing.T) {
	w := &memWriter{}
	a := newTestArchiver(w, 2)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, domain.Event{Type: domain.EventHeartbeat}))
	assert.Empty(t, w.objects)
	require.NoError(t, a.Write(ctx, domain.Event{Type: domain.EventOpportunity, MarketID: "m1"}))

	require.Len(t, w.objects, 1)
	for key, body := range w.objects {
		assert.True(t, strings.HasPrefix(key, "polyarb/events/2026/03/04/"), key)
		assert.True(t, strings.HasSuffix(key, ".jsonl"), key)
		assert.Equal(t, "application/x-ndjson", w.types[key])

		var lines []domain.Event
		sc := bufio.NewScanner(strings.NewReader(body))
		for sc.Scan() {
			var evt domain.Event
			require.NoError(t, json.Unmarshal(sc.Bytes(), &evt))
			lines = append(lines, evt)
		}
		require.Len(t, lines, 2)
		assert.Equal(t, "m1", lines[1].MarketID)
	}
	assert.Zero(t, a.Buffered())
}

func TestEventArchiver_FailedFlushKeepsEvents(t *testing.T) {
	w := &memWriter{fail: true}
	a := newTestArchiver(w, 10)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, domain.Event{Type: domain.EventHeartbeat}))
	require.Error(t, a.Flush(ctx))
	assert.Equal(t, 1, a.Buffered())

	w.fail = false
	require.NoError(t, a.Flush(ctx))
	assert.Zero(t, a.Buffered())
	assert.Len(t, w.objects, 1)
}

func TestEventArchiver_RunFlushesOnShutdown(t *testing.T) {
	w := &memWriter{}
	a := newTestArchiver(w, 10)
	require.NoError(t, a.Write(context.Background(), domain.Event{Type: domain.EventHeartbeat}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))
	assert.Len(t, w.objects, 1)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
