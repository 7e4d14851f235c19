package client

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/nikhilthomas300/myCompanion/internal/sse"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

// Run is one streaming request. Events are delivered in arrival order on
// Events until the stream ends or the run is canceled.
type Run struct {
	ctx      context.Context
	err      error
	cancel   context.CancelFunc
	events   chan protocol.Event
	done     chan struct{}
	logger   *slog.Logger
	ID       string
	ThreadID string
	dropped  int
	mu       sync.Mutex
}

func newRun(ctx context.Context, cancel context.CancelFunc, threadID, runID string, bufSize int, logger *slog.Logger) *Run {
	if bufSize < 0 {
		bufSize = 0
	}
	return &Run{
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan protocol.Event, bufSize),
		done:     make(chan struct{}),
		logger:   logger.With("runId", runID),
		ID:       runID,
		ThreadID: threadID,
	}
}

// Events returns the event channel. It is closed when the stream ends.
func (r *Run) Events() <-chan protocol.Event {
	return r.events
}

// Done is closed once the stream has ended and Err is final.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err blocks until the stream has ended and reports why. It returns nil
// for a clean end of stream and for cancellation, and *TransportError
// when reading the body failed.
func (r *Run) Err() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Dropped returns how many payloads failed to decode and were skipped.
func (r *Run) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Cancel aborts the run. It is safe to call any number of times, before or
// after the stream has ended.
func (r *Run) Cancel() {
	r.cancel()
}

func (r *Run) stream(body io.ReadCloser) {
	defer close(r.done)
	defer close(r.events)
	defer r.cancel()
	defer body.Close()

	scanner := sse.NewScanner(body)
	for scanner.Scan() {
		if r.ctx.Err() != nil {
			r.logger.Debug("run canceled")
			return
		}
		ev, err := protocol.ParseEvent(scanner.Payload())
		if err != nil {
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.logger.Warn("dropping undecodable event", "error", err)
			continue
		}
		select {
		case r.events <- ev:
		case <-r.ctx.Done():
			r.logger.Debug("run canceled")
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		r.logger.Debug("run stream ended")
		return
	}
	if r.ctx.Err() != nil {
		r.logger.Debug("run canceled", "error", err)
		return
	}
	r.mu.Lock()
	r.err = &TransportError{Op: "read", Cause: err}
	r.mu.Unlock()
	r.logger.Warn("run stream failed", "error", err)
}
