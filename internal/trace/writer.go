package trace

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBuffer is the channel capacity used when NewWriter is given a
// non-positive buffer size.
const DefaultBuffer = 256

// Writer is a Sink that serializes all events through one goroutine. Each
// event is persisted through the Appender (if any) and mirrored as one
// NDJSON line to out (if any), carrying the sequence the Appender assigned.
type Writer struct {
	events   chan Event
	done     chan struct{}
	appender Appender
	out      io.Writer
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts the writer goroutine. Call Close to flush and stop it.
func NewWriter(appender Appender, out io.Writer, log *zap.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		appender: appender,
		out:      out,
		log:      log,
	}
	go w.run()
	return w
}

// Emit queues e for writing. Events emitted after Close are dropped.
func (w *Writer) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn("trace event dropped after close",
			zap.String("agent", e.Agent), zap.String("student_id", e.StudentID))
		return
	}
	w.events <- e
}

// Close drains pending events and stops the writer goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)

	var enc *json.Encoder
	if w.out != nil {
		enc = json.NewEncoder(w.out)
	}

	for e := range w.events {
		if w.appender != nil {
			seq, err := w.appender.AppendTrace(context.Background(), e)
			if err != nil {
				w.log.Warn("failed to persist trace event", zap.Error(err), zap.String("agent", e.Agent))
			}
			e.Sequence = seq
		}
		if enc != nil {
			if err := enc.Encode(e); err != nil {
				w.log.Warn("failed to write trace line", zap.Error(err))
			}
		}
	}
}
