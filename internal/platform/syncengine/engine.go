// Package syncengine uploads records collected offline once the device can
// reach the collection server. At most one pass runs at a time; records that
// keep failing are parked in a retry queue and tried again later.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/domain/identity"
	"github.com/childhealth/fieldsync/internal/platform/events"
)

var (
	// ErrAuthenticationMissing aborts a pass when there is no credential to
	// upload with. Nothing is queued.
	ErrAuthenticationMissing = errors.New("sync: authentication required")
	// ErrUploadFailed wraps the last transport error once every attempt for
	// a record is used up.
	ErrUploadFailed = errors.New("sync: upload failed")
	// ErrSkipped is returned when a pass is requested while offline or while
	// another pass is running.
	ErrSkipped = errors.New("sync: skipped")
)

// RecordStore is the slice of the local store the engine uses.
type RecordStore interface {
	ListPending(ctx context.Context) ([]*child.Record, error)
	MarkUploaded(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int, error)
}

// Transport moves records to the collection server.
type Transport interface {
	UploadRecord(ctx context.Context, r *child.Record, credential string) error
	FetchBookletArtifact(ctx context.Context, healthID string) ([]byte, error)
}

// Result summarizes one pass or one retry drain.
type Result struct {
	Uploaded     int `json:"uploaded"`
	Failed       int `json:"failed"`
	TotalPending int `json:"totalPending"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Online         bool      `json:"online"`
	SyncInProgress bool      `json:"syncInProgress"`
	RetryQueue     int       `json:"retryQueue"`
	LastSync       time.Time `json:"lastSync,omitempty"`
	LastResult     *Result   `json:"lastResult,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
}

// Engine uploads pending records from the local store. At most one pass or
// retry drain runs at a time; records that exhaust their attempts wait in
// an in-memory retry queue.
type Engine struct {
	store     RecordStore
	transport Transport
	session   identity.Provider
	publisher events.Publisher
	logger    zerolog.Logger

	maxAttempts int
	baseDelay   time.Duration
	interval    time.Duration
	sleeper     Sleeper

	mu         sync.Mutex
	online     bool
	inProgress bool
	retryQueue []*child.Record
	lastSync   time.Time
	lastResult *Result
	lastError  error

	wake chan struct{}
}

// New returns an offline engine. Use WithOnline or SetOnline before the
// first pass.
func New(store RecordStore, transport Transport, session identity.Provider, publisher events.Publisher, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		transport:   transport,
		session:     session,
		publisher:   publisher,
		logger:      logger.With().Str("component", "syncengine").Logger(),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		interval:    defaultInterval,
		sleeper:     timerSleeper{},
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// tryBegin claims the in-progress flag. It fails when offline or when a
// pass or drain is already running.
func (e *Engine) tryBegin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online || e.inProgress {
		return false
	}
	e.inProgress = true
	return true
}

func (e *Engine) finish(res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inProgress = false
	if res != nil {
		e.lastSync = time.Now().UTC()
		r := *res
		e.lastResult = &r
		e.lastError = nil
	}
}

// aborted records why a pass stopped early. A missing credential is also
// published so listeners can prompt for sign-in.
func (e *Engine) aborted(ctx context.Context, err error) {
	e.mu.Lock()
	e.lastError = err
	e.mu.Unlock()

	if errors.Is(err, ErrAuthenticationMissing) {
		e.publish(ctx, events.SyncAuthRequired, events.TopicSync, events.AuthRequiredData{Reason: err.Error()})
	}
}

// dequeue drops a record from the retry queue once it is uploaded by some
// other path.
func (e *Engine) dequeue(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.retryQueue {
		if q.ID == id {
			e.retryQueue = append(e.retryQueue[:i:i], e.retryQueue[i+1:]...)
			return
		}
	}
}

// enqueue adds records to the retry queue, skipping ones already queued.
func (e *Engine) enqueue(records ...*child.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		if !containsRecord(e.retryQueue, r.ID) {
			e.retryQueue = append(e.retryQueue, r)
		}
	}
}

func containsRecord(queue []*child.Record, id string) bool {
	for _, q := range queue {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Status reports connectivity, whether a pass is running, and the retry
// queue length.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Online:         e.online,
		SyncInProgress: e.inProgress,
		RetryQueue:     len(e.retryQueue),
		LastSync:       e.lastSync,
	}
	if e.lastError != nil {
		st.LastError = e.lastError.Error()
	}
	if e.lastResult != nil {
		r := *e.lastResult
		st.LastResult = &r
	}
	return st
}

// RetryQueueCount is the number of records waiting for a retry drain.
func (e *Engine) RetryQueueCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.retryQueue)
}

// PendingCount is the number of records the store still holds as not
// uploaded.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountPending(ctx)
}

// SetOnline records a reachability change and publishes it. Going online
// triggers a pass.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	if !changed {
		return
	}

	eventType := events.ConnectivityOffline
	if online {
		eventType = events.ConnectivityOnline
	}
	e.logger.Info().Bool("online", online).Msg("connectivity changed")
	e.publish(ctx, eventType, events.TopicConnectivity, events.ConnectivityData{Online: online})

	if online {
		e.Trigger()
	}
}

// Trigger asks the Run loop for a pass without waiting for it. Requests
// made while one is already queued collapse into it.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ---------------------------------------------------------------------------
// Passes
// ---------------------------------------------------------------------------

// SyncPending uploads every record the store holds as pending. It returns
// ErrSkipped without doing anything when offline or when another pass or
// drain is running.
//
// A pass is not cancelled part way: once started it works through its
// whole snapshot even if ctx is cancelled.
func (e *Engine) SyncPending(ctx context.Context) (Result, error) {
	if !e.tryBegin() {
		return Result{}, ErrSkipped
	}
	var completed *Result
	defer func() { e.finish(completed) }()

	ctx = context.WithoutCancel(ctx)

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("sync pass aborted: snapshot failed")
		err = fmt.Errorf("snapshot pending records: %w", err)
		e.aborted(ctx, err)
		return Result{}, err
	}

	res := Result{TotalPending: len(pending)}
	if len(pending) > 0 {
		e.logger.Info().Int("pending", len(pending)).Msg("sync pass started")
	}

	var failed []*child.Record
	for _, r := range pending {
		uploaded, err := e.uploadAndMark(ctx, r)
		if err != nil {
			e.enqueue(failed...)
			e.aborted(ctx, err)
			return res, err
		}
		if uploaded {
			res.Uploaded++
			e.dequeue(r.ID)
		} else {
			res.Failed++
			failed = append(failed, r)
		}
	}
	e.enqueue(failed...)

	completed = &res
	e.logger.Info().Int("uploaded", res.Uploaded).Int("failed", res.Failed).Int("total_pending", res.TotalPending).Msg("sync pass completed")
	e.publish(ctx, events.SyncCompleted, events.TopicSync, events.SyncCompletedData(res))
	return res, nil
}

// RetryFailedUploads tries the retry queue again. Records that still fail
// form the new queue. It returns ErrSkipped when offline, when the queue is
// empty, or when a pass is running.
func (e *Engine) RetryFailedUploads(ctx context.Context) (Result, error) {
	e.mu.Lock()
	empty := len(e.retryQueue) == 0
	e.mu.Unlock()
	if empty || !e.tryBegin() {
		return Result{}, ErrSkipped
	}
	var completed *Result
	defer func() { e.finish(completed) }()

	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	queue := e.retryQueue
	e.retryQueue = nil
	e.mu.Unlock()

	res := Result{TotalPending: len(queue)}
	e.logger.Info().Int("queued", len(queue)).Msg("retrying failed uploads")

	var still []*child.Record
	for i, r := range queue {
		uploaded, err := e.uploadAndMark(ctx, r)
		if err != nil {
			// put back whatever was not tried
			e.enqueue(queue[i:]...)
			e.enqueue(still...)
			e.aborted(ctx, err)
			return res, err
		}
		if uploaded {
			res.Uploaded++
		} else {
			res.Failed++
			still = append(still, r)
		}
	}
	e.enqueue(still...)

	completed = &res
	e.logger.Info().Int("uploaded", res.Uploaded).Int("failed", res.Failed).Msg("retry drain completed")
	return res, nil
}

// uploadAndMark uploads one record and marks it uploaded. It reports false
// when the record should be retried later. A returned error aborts the
// pass.
func (e *Engine) uploadAndMark(ctx context.Context, r *child.Record) (bool, error) {
	if err := e.upload(ctx, r); err != nil {
		if errors.Is(err, ErrAuthenticationMissing) {
			e.logger.Warn().Msg("sync pass aborted: no credential")
			return false, err
		}
		e.logger.Warn().Err(err).Str("health_id", r.HealthID).Msg("upload failed, queued for retry")
		return false, nil
	}

	if err := e.store.MarkUploaded(ctx, r.ID); err != nil {
		// The server already has it; uploads are idempotent by health id,
		// so the record just stays pending and goes up again next time.
		e.logger.Error().Err(err).Str("health_id", r.HealthID).Msg("uploaded but could not mark record")
		return false, nil
	}
	return true, nil
}

// upload runs the bounded retry loop for one record: up to maxAttempts
// tries, waiting k*baseDelay after failed attempt k.
func (e *Engine) upload(ctx context.Context, r *child.Record) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		credential, ok := e.session.CurrentCredential()
		if !ok {
			return ErrAuthenticationMissing
		}

		lastErr = e.transport.UploadRecord(ctx, r, credential)
		if lastErr == nil {
			e.logger.Debug().Str("health_id", r.HealthID).Int("attempt", attempt).Msg("record uploaded")
			return nil
		}
		if attempt < e.maxAttempts {
			if err := e.sleeper.Sleep(ctx, time.Duration(attempt)*e.baseDelay); err != nil {
				break
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUploadFailed, r.HealthID, e.maxAttempts, lastErr)
}

// FetchBooklet downloads the health booklet artifact for a record.
func (e *Engine) FetchBooklet(ctx context.Context, healthID string) ([]byte, error) {
	return e.transport.FetchBookletArtifact(ctx, healthID)
}

func (e *Engine) publish(ctx context.Context, eventType, topic string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	ev, err := events.New(eventType, topic, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("type", eventType).Msg("build event")
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("type", eventType).Msg("publish event")
	}
}

// ---------------------------------------------------------------------------
// Scheduling
// ---------------------------------------------------------------------------

// Run drives passes until ctx is done: on every Trigger (including going
// online) and on every interval tick. Each wake runs a main pass, then a
// retry drain if anything is queued. Skipped passes are not errors.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", e.interval).Int("max_attempts", e.maxAttempts).Msg("sync scheduler started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-e.wake:
		}
		e.runOnce(ctx)
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	if _, err := e.SyncPending(ctx); err != nil && !errors.Is(err, ErrSkipped) {
		e.logger.Error().Err(err).Msg("sync pass failed")
		return
	}
	if _, err := e.RetryFailedUploads(ctx); err != nil && !errors.Is(err, ErrSkipped) {
		e.logger.Error().Err(err).Msg("retry drain failed")
	}
}
