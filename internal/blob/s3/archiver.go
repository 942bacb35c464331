package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ArchiverConfig tunes event batching.
type ArchiverConfig struct {
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
}

// EventArchiver buffers telemetry events and uploads them as JSONL objects
// under <prefix>/events/YYYY/MM/DD/. A batch is uploaded when it reaches
// BatchSize, on every FlushInterval tick and on shutdown.
type EventArchiver struct {
	cfg    ArchiverConfig
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	buf []domain.Event
	seq int
}

// NewEventArchiver creates an archiver uploading through writer.
func NewEventArchiver(cfg ArchiverConfig, writer domain.BlobWriter, logger *slog.Logger) *EventArchiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &EventArchiver{
		cfg:    cfg,
		writer: writer,
		logger: logger.With(slog.String("component", "event_archiver")),
		now:    time.Now,
	}
}

// Name identifies the archiver as a telemetry sink.
func (a *EventArchiver) Name() string { return "s3" }

// Write buffers evt and uploads the batch once it is full.
func (a *EventArchiver) Write(ctx context.Context, evt domain.Event) error {
	a.mu.Lock()
	a.buf = append(a.buf, evt)
	full := len(a.buf) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Flush uploads whatever is buffered. On failure the batch is put back so
// the next flush retries it.
func (a *EventArchiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	for _, evt := range batch {
		if err := enc.Encode(evt); err != nil {
			return fmt.Errorf("s3blob: encode event: %w", err)
		}
	}

	key := a.objectKey(seq)
	if err := a.writer.PutObject(ctx, key, data.Bytes(), "application/x-ndjson"); err != nil {
		a.mu.Lock()
		a.buf = append(batch, a.buf...)
		a.mu.Unlock()
		return fmt.Errorf("s3blob: archive %d events: %w", len(batch), err)
	}

	a.logger.DebugContext(ctx, "events archived",
		slog.String("key", key),
		slog.Int("count", len(batch)),
	)
	return nil
}

// Buffered returns the number of events waiting for upload.
func (a *EventArchiver) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Run flushes on every interval and once more when ctx is cancelled.
func (a *EventArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := a.Flush(flushCtx); err != nil {
				a.logger.WarnContext(ctx, "final archive flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *EventArchiver) objectKey(seq int) string {
	t := a.now().UTC()
	name := fmt.Sprintf("%d-%04d.jsonl", t.UnixNano(), seq)
	return path.Join(a.cfg.Prefix, "events", t.Format("2006/01/02"), name)
}
