package activity

import (
	"context"
	"errors"
	"fmt"
	"guardpost/db"
	"guardpost/metrics"
	"guardpost/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRecorderClosed is returned by Close when called twice.
var ErrRecorderClosed = errors.New("activity recorder closed")

// Event is one action to record. A zero Actor records an anonymous entry.
type Event struct {
	Actor    models.Identity
	Meta     models.RequestMeta
	Action   Action
	Details  Details
	Location *models.LocationResult
}

// Validate checks the action against the taxonomy and the details shape
// against the action.
func (e Event) Validate() error {
	if _, ok := e.Action.Category(); !ok {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if e.Details != nil && !e.Details.allows(e.Action) {
		return fmt.Errorf("details %T do not apply to action %q", e.Details, e.Action)
	}
	return nil
}

// Options tunes the recorder's queue and retry policy.
type Options struct {
	QueueSize    int           // 256
	Workers      int           // 2
	MaxAttempts  int           // 3
	RetryBackoff time.Duration // 200ms, multiplied by the attempt number; negative disables
	WriteTimeout time.Duration // 5s per attempt
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	} else if o.RetryBackoff == 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Recorder appends activity entries off the request path. Record never
// blocks and never reports an error: a failed write is retried, then logged
// and dropped.
type Recorder struct {
	store  db.ActivityStore
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan models.ActivityLogEntry
	wg     sync.WaitGroup
}

// NewRecorder starts the recorder's workers.
func NewRecorder(store db.ActivityStore, logger *zap.Logger, opts Options) *Recorder {
	opts.setDefaults()
	r := &Recorder{
		store:  store,
		logger: logger.With(zap.String("component", "activity")),
		opts:   opts,
		now:    time.Now,
		queue:  make(chan models.ActivityLogEntry, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// SetClock overrides the server timestamp source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record stamps and enqueues the event.
func (r *Recorder) Record(_ context.Context, ev Event) {
	if err := ev.Validate(); err != nil {
		metrics.ActivityWritesTotal.WithLabelValues("rejected").Inc()
		r.logger.Error("rejected activity event", zap.String("action", string(ev.Action)), zap.Error(err))
		return
	}
	entry := r.entry(ev)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.ActivityWritesTotal.WithLabelValues("dropped").Inc()
		r.logger.Warn("activity recorder closed, dropping entry", zap.String("action", entry.Action), zap.String("user_id", entry.UserID))
		return
	}
	select {
	case r.queue <- entry:
	default:
		metrics.ActivityWritesTotal.WithLabelValues("dropped").Inc()
		r.logger.Error("activity queue full, dropping entry", zap.String("action", entry.Action), zap.String("user_id", entry.UserID))
	}
}

func (r *Recorder) entry(ev Event) models.ActivityLogEntry {
	category, _ := ev.Action.Category()
	details := map[string]interface{}{}
	if ev.Details != nil {
		details = ev.Details.Fields()
	}
	return models.ActivityLogEntry{
		EntryID:      uuid.NewString(),
		UserID:       ev.Actor.UserID,
		UserName:     ev.Actor.UserName,
		UserEmail:    ev.Actor.UserEmail,
		UserRole:     ev.Actor.UserRole,
		Action:       string(ev.Action),
		Category:     category,
		Details:      details,
		DeviceType:   ev.Meta.DeviceType,
		IPAddress:    ev.Meta.IPAddress,
		UserAgent:    ev.Meta.UserAgent,
		LocationData: ev.Location.Clone(),
		Timestamp:    r.now().UTC(),
	}
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for entry := range r.queue {
		r.write(entry)
	}
}

func (r *Recorder) write(entry models.ActivityLogEntry) {
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
		err := r.store.InsertActivity(ctx, &entry)
		cancel()
		if err == nil {
			metrics.ActivityWritesTotal.WithLabelValues("written").Inc()
			return
		}

		r.logger.Warn("activity write failed",
			zap.String("action", entry.Action),
			zap.String("user_id", entry.UserID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < r.opts.MaxAttempts {
			metrics.ActivityWritesTotal.WithLabelValues("retried").Inc()
			time.Sleep(r.opts.RetryBackoff * time.Duration(attempt))
		}
	}
	metrics.ActivityWritesTotal.WithLabelValues("dropped").Inc()
	r.logger.Error("activity entry dropped after retries",
		zap.String("action", entry.Action),
		zap.String("user_id", entry.UserID),
		zap.Int("attempts", r.opts.MaxAttempts))
}

// Close stops accepting events and waits for queued ones to be written or
// for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
