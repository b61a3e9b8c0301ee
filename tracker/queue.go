// Package tracker buffers analytics events client-side and decides when
// to hand them to the aggregate writer: on size thresholds, on a
// periodic timer, on reconnect and on shutdown. Tracking is always
// best-effort; a failing writer never surfaces to the action the user
// took.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"portfolio-analytics/config"
	"portfolio-analytics/model"

	"github.com/rs/zerolog/log"
)

// ErrQueueClosed is returned by Flush after Stop.
var ErrQueueClosed = errors.New("tracker: queue closed")

// Syncer writes a drained batch. Implemented by analytics.Writer.
type Syncer interface {
	Sync(ctx context.Context, events []model.Event) error
}

// Queue is an append-only buffer of pending events with flush triggers.
// Construct with NewQueue and drive the lifecycle with Start/Stop;
// there is no package-level singleton.
type Queue struct {
	writer Syncer
	cfg    config.TrackerConfig

	mu     sync.Mutex
	buf    *deque
	online bool
	closed bool

	// flushMu serializes deliveries so a second trigger while one write
	// is in flight cannot re-send the same items; each delivery works on
	// a buffer drained before the write begins.
	flushMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a stopped queue. Zero config values fall back to the
// defaults from the browser client: flush at 10 events (3 for
// commands), every 30s, retain at most 100.
func NewQueue(writer Syncer, cfg config.TrackerConfig) *Queue {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 10
	}
	if cfg.CommandFlushThreshold <= 0 {
		cfg.CommandFlushThreshold = 3
	}
	if cfg.FlushIntervalSeconds <= 0 {
		cfg.FlushIntervalSeconds = 30
	}
	if cfg.FlushTimeoutSeconds <= 0 {
		cfg.FlushTimeoutSeconds = 10
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = 100
	}

	return &Queue{
		writer: writer,
		cfg:    cfg,
		buf:    newDeque(cfg.MaxQueued),
		online: true,
		done:   make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.loop()
}

// Stop halts the periodic loop and forces a final flush, the analog of
// a page unload. Best effort within ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	err := q.flush(ctx)
	q.wg.Wait()
	return err
}

// Track appends a generic event, stamping it with the client clock.
// Non-blocking: a threshold flush runs asynchronously.
func (q *Queue) Track(ev model.Event) {
	if ev.Kind == "" {
		ev.Kind = model.KindInteraction
	}
	q.enqueue(ev, q.cfg.FlushThreshold)
}

// TrackCommand appends a command event. AI commands without a captured
// response are dropped: storing dead-air entries was rejected as
// policy. Commands flush on a lower threshold so they are not lost.
func (q *Queue) TrackCommand(command, response string, kind model.CommandKind) {
	if command == "" || (kind == model.CommandAI && response == "") {
		return
	}
	q.enqueue(model.Event{
		Kind:        model.KindCommand,
		Command:     command,
		Response:    response,
		CommandKind: kind,
	}, q.cfg.CommandFlushThreshold)
}

// TrackLinkClick appends an external-link click event.
func (q *Queue) TrackLinkClick(url, title string) {
	q.enqueue(model.Event{
		Kind:  model.KindLinkClick,
		URL:   url,
		Title: title,
	}, q.cfg.FlushThreshold)
}

func (q *Queue) enqueue(ev model.Event, threshold int) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	q.mu.Lock()
	if dropped := q.buf.PushBack(ev); dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Event buffer full, dropped oldest")
	}
	shouldFlush := q.online && !q.closed && q.buf.Len() >= threshold
	var batch []model.Event
	if shouldFlush {
		// Drain before the async write starts so a concurrent trigger
		// cannot pick up the same items.
		batch = q.buf.Drain()
	}
	q.mu.Unlock()

	if len(batch) > 0 {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			ctx, cancel := q.flushContext()
			defer cancel()
			q.deliver(ctx, batch)
		}()
	}
}

// Flush drains and writes the buffer synchronously. On failure the
// batch is re-prepended for a later retry and the error returned.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()
	return q.flush(ctx)
}

func (q *Queue) flush(ctx context.Context) error {
	q.mu.Lock()
	batch := q.buf.Drain()
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return q.deliver(ctx, batch)
}

func (q *Queue) deliver(ctx context.Context, batch []model.Event) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	if err := q.writer.Sync(ctx, batch); err != nil {
		q.requeue(batch)
		log.Warn().Err(err).Int("events", len(batch)).Msg("Flush failed, batch re-queued")
		return err
	}
	return nil
}

// requeue puts a failed batch back at the front so its events go out
// before anything newer, dropping the oldest overflow past the cap.
func (q *Queue) requeue(batch []model.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dropped := q.buf.PushFront(batch); dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Retry buffer full, dropped oldest")
	}
}

// SetOnline updates connectivity; the offline→online transition flushes
// whatever accumulated while disconnected.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOffline := !q.online
	q.online = online
	pending := q.buf.Len() > 0 && !q.closed
	q.mu.Unlock()

	if online && wasOffline && pending {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			ctx, cancel := q.flushContext()
			defer cancel()
			q.flush(ctx)
		}()
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

func (q *Queue) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Duration(q.cfg.FlushIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.mu.Lock()
			ready := q.online && q.buf.Len() > 0
			q.mu.Unlock()
			if ready {
				ctx, cancel := q.flushContext()
				q.flush(ctx)
				cancel()
			}
		case <-q.done:
			return
		}
	}
}

func (q *Queue) flushContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(q.cfg.FlushTimeoutSeconds)*time.Second)
}
