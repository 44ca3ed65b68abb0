package gojob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDPersistentURL = "entitygraph.persistent_url.add"

	DedupPolicyDrop = "drop"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// PersistentURLIdempotencyKey is pid:<collection>:<id>:<rev>.
func PersistentURLIdempotencyKey(lookup core.EntityLookup) string {
	return fmt.Sprintf("pid:%s:%s:%d", strings.TrimSpace(lookup.Collection), lookup.TimID, lookup.Rev)
}

// ToExecutionMessage maps a persistent URL task to a go-job message.
func ToExecutionMessage(task *core.AddPersistentURLTask) (*job.ExecutionMessage, error) {
	if task == nil || task.URI == nil {
		return nil, fmt.Errorf("gojob: persistent url task is required")
	}
	if err := task.Lookup.Validate(); err != nil {
		return nil, err
	}
	return &job.ExecutionMessage{
		JobID:      JobIDPersistentURL,
		ScriptPath: JobIDPersistentURL,
		Parameters: map[string]any{
			"uri":        task.URI.String(),
			"collection": task.Lookup.Collection,
			"entity_id":  task.Lookup.TimID.String(),
			"rev":        task.Lookup.Rev,
		},
		IdempotencyKey: PersistentURLIdempotencyKey(task.Lookup),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}, nil
}

// FromExecutionMessage recovers the URI and lookup carried by a message.
func FromExecutionMessage(msg *job.ExecutionMessage) (*url.URL, core.EntityLookup, error) {
	if msg == nil {
		return nil, core.EntityLookup{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDPersistentURL {
		return nil, core.EntityLookup{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	rawURI, _ := msg.Parameters["uri"].(string)
	uri, err := url.Parse(strings.TrimSpace(rawURI))
	if err != nil || rawURI == "" {
		return nil, core.EntityLookup{}, fmt.Errorf("gojob: invalid uri parameter %q", rawURI)
	}
	collection, _ := msg.Parameters["collection"].(string)
	rawID, _ := msg.Parameters["entity_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, core.EntityLookup{}, fmt.Errorf("gojob: invalid entity_id parameter: %w", err)
	}
	rev, err := intParameter(msg.Parameters["rev"])
	if err != nil {
		return nil, core.EntityLookup{}, err
	}
	lookup := core.EntityLookup{Collection: collection, TimID: id, Rev: rev}
	if err := lookup.Validate(); err != nil {
		return nil, core.EntityLookup{}, err
	}
	return uri, lookup, nil
}

// intParameter accepts the numeric shapes a message picks up after a JSON
// round trip through a queue backend.
func intParameter(value any) (int, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		return int(typed), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(typed))
	default:
		return 0, fmt.Errorf("gojob: invalid rev parameter %v", value)
	}
}

// QueueTaskRunner hands persistent URL tasks to a queue and runs every other
// task inline through fallback. Tasks are handled in enqueue order.
type QueueTaskRunner struct {
	enqueuer queue.Enqueuer
	fallback core.TaskRunner
	logger   glog.Logger
}

func NewQueueTaskRunner(enqueuer queue.Enqueuer, fallback core.TaskRunner, logger glog.Logger) *QueueTaskRunner {
	logger = glog.Ensure(logger)
	if fallback == nil {
		fallback = core.NewSequentialTaskRunner(logger)
	}
	return &QueueTaskRunner{enqueuer: enqueuer, fallback: fallback, logger: logger}
}

func (r *QueueTaskRunner) Run(ctx context.Context, tasks []core.Task) core.TaskReport {
	report := core.TaskReport{}
	for _, task := range tasks {
		if task == nil {
			continue
		}
		persistent, ok := task.(*core.AddPersistentURLTask)
		if !ok || r.enqueuer == nil {
			inline := r.fallback.Run(ctx, []core.Task{task})
			report.Executed = append(report.Executed, inline.Executed...)
			report.Failures = append(report.Failures, inline.Failures...)
			report.Queued += inline.Queued
			continue
		}
		if err := r.enqueue(ctx, persistent); err != nil {
			report.Failures = append(report.Failures, core.TaskFailure{Description: task.Description(), Err: err})
			r.logger.Error("post-commit task enqueue failed", "task", task.Description(), "error", err.Error())
			continue
		}
		report.Queued++
	}
	return report
}

func (r *QueueTaskRunner) enqueue(ctx context.Context, task *core.AddPersistentURLTask) error {
	msg, err := ToExecutionMessage(task)
	if err != nil {
		return err
	}
	return r.enqueuer.Enqueue(ctx, msg)
}

// PersistentURLHandler executes queued persistent URL jobs.
type PersistentURLHandler struct {
	redirects core.RedirectionService
}

func NewPersistentURLHandler(redirects core.RedirectionService) *PersistentURLHandler {
	return &PersistentURLHandler{redirects: redirects}
}

func (h *PersistentURLHandler) Handle(ctx context.Context, msg *job.ExecutionMessage) error {
	if h == nil || h.redirects == nil {
		return fmt.Errorf("gojob: redirection service is not configured")
	}
	uri, lookup, err := FromExecutionMessage(msg)
	if err != nil {
		return err
	}
	return core.NewAddPersistentURLTask(h.redirects, uri, lookup).Execute(ctx)
}

// ErrEntityBlocked is returned by ProcessNext when a delivery was put back
// because an earlier job for the same entity is still waiting for a retry.
var ErrEntityBlocked = errors.New("gojob: entity blocked by a pending retry")

// Worker pulls one delivery at a time and acks or nacks it under policy.
// Jobs of one entity run in delivery order: once a job fails and is
// requeued, later jobs for that entity are requeued untouched until the
// failed job succeeds or is dead-lettered.
type Worker struct {
	dequeuer queue.Dequeuer
	handler  *PersistentURLHandler
	policy   RetryPolicy
	hook     worker.Hook

	mu       sync.Mutex
	attempts map[string]int
	blocked  map[string]string
}

func NewWorker(dequeuer queue.Dequeuer, handler *PersistentURLHandler, policy RetryPolicy, hook worker.Hook) *Worker {
	return &Worker{
		dequeuer: dequeuer,
		handler:  handler,
		policy:   policy,
		hook:     hook,
		attempts: map[string]int{},
		blocked:  map[string]string{},
	}
}

// entityKey is <collection>:<id>, empty when the message is not a
// persistent URL job.
func entityKey(msg *job.ExecutionMessage) string {
	_, lookup, err := FromExecutionMessage(msg)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(lookup.Collection) + ":" + lookup.TimID.String()
}

// blockedBy reports whether entity is held by a job other than key.
func (w *Worker) blockedBy(entity string, key string) bool {
	if entity == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	holder, ok := w.blocked[entity]
	return ok && holder != key
}

func (w *Worker) block(entity string, key string) {
	if entity == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocked[entity] = key
}

func (w *Worker) unblock(entity string, key string) {
	if entity == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blocked[entity] == key {
		delete(w.blocked, entity)
	}
}

func (w *Worker) attempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

// ProcessNext handles a single delivery. The returned error is the handler
// error, after the delivery was settled, or ErrEntityBlocked when the
// delivery was requeued behind a pending retry.
func (w *Worker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.handler == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	key := ""
	if msg != nil {
		key = msg.IdempotencyKey
	}
	entity := entityKey(msg)
	if w.blockedBy(entity, key) {
		opts := queue.NackOptions{
			Delay:   w.policy.Backoff(1),
			Requeue: true,
			Reason:  ErrEntityBlocked.Error(),
		}
		if err := delivery.Nack(ctx, opts); err != nil {
			return err
		}
		return ErrEntityBlocked
	}
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   w.attempt(key),
		StartedAt: time.Now().UTC(),
	}
	w.emit(ctx, w.hookStart, event)

	handleErr := w.handler.Handle(ctx, msg)
	event.Duration = time.Since(event.StartedAt)
	if handleErr == nil {
		w.forget(key)
		w.unblock(entity, key)
		if err := delivery.Ack(ctx); err != nil {
			return err
		}
		w.emit(ctx, w.hookSuccess, event)
		return nil
	}

	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.policy.Backoff(event.Attempt),
		Requeue: true,
		Reason:  handleErr.Error(),
	}, event.Attempt)
	if opts.Requeue {
		w.block(entity, key)
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return err
	}
	event.Err = handleErr
	event.Delay = opts.Delay
	if opts.Requeue {
		w.emit(ctx, w.hookRetry, event)
	} else {
		w.forget(key)
		w.unblock(entity, key)
		w.emit(ctx, w.hookFailure, event)
	}
	return handleErr
}

func (w *Worker) emit(ctx context.Context, fn func(context.Context, worker.Event), event worker.Event) {
	if w.hook == nil {
		return
	}
	fn(ctx, event)
}

func (w *Worker) hookStart(ctx context.Context, event worker.Event)   { w.hook.OnStart(ctx, event) }
func (w *Worker) hookSuccess(ctx context.Context, event worker.Event) { w.hook.OnSuccess(ctx, event) }
func (w *Worker) hookFailure(ctx context.Context, event worker.Event) { w.hook.OnFailure(ctx, event) }
func (w *Worker) hookRetry(ctx context.Context, event worker.Event)   { w.hook.OnRetry(ctx, event) }

// LoggingHook reports worker events through a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, event).Debug("persistent url job started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, event).Info("persistent url job succeeded", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, event).Error("persistent url job failed", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, event).Warn("persistent url job scheduled for retry", eventArgs(event)...)
}

func (h *LoggingHook) log(ctx context.Context, _ worker.Event) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	if ctx == nil {
		return h.logger
	}
	return h.logger.WithContext(ctx)
}

func eventArgs(event worker.Event) []any {
	args := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if event.Message != nil {
		args = append(args, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var (
	_ core.TaskRunner = (*QueueTaskRunner)(nil)
	_ worker.Hook     = (*LoggingHook)(nil)
)
