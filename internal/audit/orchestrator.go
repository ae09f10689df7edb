package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auditlab/auditoria/internal/collector"
	"github.com/auditlab/auditoria/internal/llm"
	"github.com/auditlab/auditoria/internal/logging"
	"github.com/auditlab/auditoria/internal/security"
	"github.com/auditlab/auditoria/internal/validator"
)

var (
	// ErrQueueFull is returned by Start when the job queue is at capacity.
	// Callers fail fast instead of blocking.
	ErrQueueFull = errors.New("audit queue is full")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("audit job not found")

	// ErrJobNotFinished is returned by Result for a job that has not reached
	// a terminal state yet.
	ErrJobNotFinished = errors.New("audit job has not finished")

	// ErrShuttingDown is returned by Start after Close.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// eventBuffer sizes each subscriber channel. Slow consumers drop events
// rather than stalling the owning worker.
const eventBuffer = 16

// Config tunes the worker pool and the watchdog.
type Config struct {
	Workers        int
	QueueCapacity  int
	MaxJobDuration time.Duration
	StageTimeout   time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueCapacity:  64,
		MaxJobDuration: 5 * time.Minute,
		StageTimeout:   time.Minute,
	}
}

// Orchestrator owns the job table and the worker pool. Each running job is
// mutated by exactly one worker; all reads go through snapshot copies.
type Orchestrator struct {
	cfg      Config
	crawler  collector.Collector
	metrics  collector.Collector
	agent    *validator.Agent
	security *security.Manager
	gateway  llm.Gateway
	store    *Store
	logger   logging.Logger

	mu          sync.Mutex
	jobs        map[string]*Job
	subscribers map[string][]chan JobEvent
	closed      bool

	queue chan string
	wg    sync.WaitGroup
}

// NewOrchestrator wires the stage collaborators and starts the worker pool.
// metrics and store may be nil; the corresponding work is skipped.
func NewOrchestrator(cfg Config, crawler, metrics collector.Collector, agent *validator.Agent,
	sec *security.Manager, gateway llm.Gateway, store *Store, logger logging.Logger) *Orchestrator {

	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.MaxJobDuration <= 0 {
		cfg.MaxJobDuration = def.MaxJobDuration
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = def.StageTimeout
	}

	o := &Orchestrator{
		cfg:         cfg,
		crawler:     crawler,
		metrics:     metrics,
		agent:       agent,
		security:    sec,
		gateway:     gateway,
		store:       store,
		logger:      logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		jobs:        make(map[string]*Job),
		subscribers: make(map[string][]chan JobEvent),
		queue:       make(chan string, cfg.QueueCapacity),
	}

	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}

	return o
}

// Start creates a pending job for targetURL and enqueues it. It returns
// immediately; ErrQueueFull when the queue is at capacity.
func (o *Orchestrator) Start(targetURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid target url %q", targetURL)
	}

	job := &Job{
		ID:        uuid.NewString(),
		TargetURL: u.String(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	// The enqueue happens under the same mutex that Close uses to close the
	// queue, so Start can never send on a closed channel.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	select {
	case o.queue <- job.ID:
		o.jobs[job.ID] = job
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		return "", ErrQueueFull
	}

	o.logger.Info("audit enqueued",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "target_url", Value: job.TargetURL})
	return job.ID, nil
}

// Status returns a snapshot of the job.
func (o *Orchestrator) Status(jobID string) (*Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// Result returns the full job once it is terminal. Jobs no longer held in
// memory are looked up in the persistent store.
func (o *Orchestrator) Result(jobID string) (*Job, error) {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if ok && !job.Status.Terminal() {
		o.mu.Unlock()
		return nil, ErrJobNotFinished
	}
	if ok {
		snap := job.snapshot()
		o.mu.Unlock()
		return snap, nil
	}
	o.mu.Unlock()

	if o.store == nil {
		return nil, ErrJobNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}
	return stored, nil
}

// List returns snapshots of every known job, newest first.
func (o *Orchestrator) List() []*Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		out = append(out, job.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Subscribe returns a channel of progress events for jobID plus a cancel
// function. The channel is closed when the job reaches a terminal state. A
// subscription to an already-terminal job receives one final event.
func (o *Orchestrator) Subscribe(jobID string) (<-chan JobEvent, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, ok := o.jobs[jobID]
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan JobEvent, eventBuffer)
	if job.Status.Terminal() {
		ch <- eventFor(job)
		close(ch)
		return ch, func() {}, nil
	}

	o.subscribers[jobID] = append(o.subscribers[jobID], ch)
	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		subs := o.subscribers[jobID]
		for i, s := range subs {
			if s == ch {
				o.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel, nil
}

// Close stops accepting jobs and waits for in-flight jobs to finish. The
// queue is closed under the mutex so a concurrent Start either observes
// closed or completes its send first.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for jobID := range o.queue {
		o.run(jobID)
	}
}

// run executes the stage sequence for one job. The watchdog context bounds
// the whole run; a hung collaborator fails the job instead of leaking a
// worker forever.
func (o *Orchestrator) run(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.MaxJobDuration)
	defer cancel()

	o.update(jobID, func(j *Job) {
		j.Status = StatusRunning
		j.CurrentStep = StageCollect
	})

	var (
		doc      *collector.PageDocument
		metrics  *collector.PageMetrics
		results  []*validator.ValidationResult
		drift    *DriftReport
		docCache bool
	)

	for i, stage := range stageOrder {
		if err := ctx.Err(); err != nil {
			o.finish(jobID, StatusFailed, Step{
				Name:      stage,
				Error:     fmt.Sprintf("job exceeded maximum duration: %v", err),
				StartedAt: time.Now().UTC(),
			})
			return
		}

		o.update(jobID, func(j *Job) { j.CurrentStep = stage })

		step := Step{Name: stage, StartedAt: time.Now().UTC()}
		stageCtx, stageCancel := context.WithTimeout(ctx, o.cfg.StageTimeout)

		switch stage {
		case StageCollect:
			doc, metrics, docCache, step.Error = o.collect(stageCtx, jobID)
			step.Cached = docCache
			step.Success = step.Error == ""
			if doc == nil && metrics == nil {
				stageCancel()
				step.FinishedAt = time.Now().UTC()
				o.finish(jobID, StatusFailed, step)
				return
			}
			if doc != nil {
				// Screen the collected text before it travels any further
				// toward a prompt. HIGH findings are recorded and logged;
				// the sanitization in CreateSafePrompt remains the actual
				// barrier.
				scan := o.security.DetectThreats(doc.Title + "\n" + doc.TextContent)
				step.Warnings = scan.Warnings
				step.BlockedPatterns = scan.BlockedPatterns
				if !scan.IsSafe {
					o.logger.Warn("collected content matched threat patterns",
						logging.Field{Key: "job_id", Value: jobID},
						logging.Field{Key: "patterns", Value: scan.BlockedPatterns})
				}

				o.update(jobID, func(j *Job) {
					j.PageTitle = doc.Title
					j.PageText = doc.TextContent
				})
			}

		case StageValidate:
			results = o.agent.Validate(doc, metrics)
			aggregate := validator.AggregateScore(results)
			step.Success = true
			step.Validation = results
			o.update(jobID, func(j *Job) { j.AggregateScore = aggregate })

		case StageDrift:
			drift, step.Error = o.drift(stageCtx, jobID, doc, validator.AggregateScore(results))
			step.Success = step.Error == ""
			step.Drift = drift

		case StageDocument:
			documentation := o.document(stageCtx, jobID, results)
			step.Success = true
			o.update(jobID, func(j *Job) { j.Documentation = documentation })
		}
		stageCancel()

		step.FinishedAt = time.Now().UTC()
		progress := (i + 1) * 100 / len(stageOrder)
		o.update(jobID, func(j *Job) {
			j.Steps = append(j.Steps, step)
			if progress > j.Progress {
				j.Progress = progress
			}
		})
	}

	o.finish(jobID, StatusCompleted, Step{})
}

// collect runs both adapters. A single adapter failure is recorded but does
// not stop the job; the stage fails only when nothing was collected.
func (o *Orchestrator) collect(ctx context.Context, jobID string) (*collector.PageDocument, *collector.PageMetrics, bool, string) {
	job, err := o.Status(jobID)
	if err != nil {
		return nil, nil, false, err.Error()
	}

	var errs []string
	var doc *collector.PageDocument
	var cached bool

	crawlRes := o.crawler.Collect(ctx, job.TargetURL)
	if crawlRes.Success {
		doc = crawlRes.Document
		cached = crawlRes.Cached
	} else {
		errs = append(errs, crawlRes.Error)
		o.logger.Warn("crawl failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "error", Value: crawlRes.Error})
	}

	var metrics *collector.PageMetrics
	if o.metrics != nil {
		metricsRes := o.metrics.Collect(ctx, job.TargetURL)
		if metricsRes.Success {
			metrics = metricsRes.Metrics
		} else {
			errs = append(errs, metricsRes.Error)
			o.logger.Warn("metrics fetch failed",
				logging.Field{Key: "job_id", Value: jobID},
				logging.Field{Key: "error", Value: metricsRes.Error})
		}
	}

	return doc, metrics, cached, strings.Join(errs, "; ")
}

// drift looks up the previous completed audit and diffs it against the
// current snapshot. Having no previous audit is a normal first-run outcome,
// not an error.
func (o *Orchestrator) drift(ctx context.Context, jobID string, doc *collector.PageDocument, aggregate float64) (*DriftReport, string) {
	if o.store == nil || doc == nil {
		return nil, ""
	}

	job, err := o.Status(jobID)
	if err != nil {
		return nil, err.Error()
	}

	prev, err := o.store.LastCompletedForURL(ctx, job.TargetURL, jobID)
	if errors.Is(err, ErrNoPreviousAudit) {
		return nil, ""
	}
	if err != nil {
		return nil, err.Error()
	}

	return compareDrift(prev, doc.Title, doc.TextContent, aggregate), ""
}

// document builds the security-screened prompt, asks the gateway, and
// validates the response for instruction leakage. Every failure path
// degrades to the templated fallback; documentation is best-effort and never
// fails the job.
func (o *Orchestrator) document(ctx context.Context, jobID string, results []*validator.ValidationResult) string {
	job, err := o.Status(jobID)
	if err != nil {
		return ""
	}

	prompt, err := o.security.CreateSafePrompt(security.TemplateAuditDocumentation, map[string]string{
		"target_url":      job.TargetURL,
		"aggregate_score": fmt.Sprintf("%.1f", job.AggregateScore),
		"findings":        findingsText(results),
	})
	if err != nil {
		o.logger.Error("prompt construction failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "error", Value: err.Error()})
		return fallbackDocumentation(job, results)
	}

	text, err := o.gateway.Generate(ctx, prompt)
	if err != nil {
		o.logger.Warn("documentation generation failed, using fallback",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "error", Value: err.Error()})
		return fallbackDocumentation(job, results)
	}

	if !o.security.ValidateResponse(text) {
		o.logger.Warn("model response failed leak screening, using fallback",
			logging.Field{Key: "job_id", Value: jobID})
		return fallbackDocumentation(job, results)
	}

	return text
}

// finish moves the job to a terminal state, persists it, and notifies
// subscribers. failStep is appended only when failing.
func (o *Orchestrator) finish(jobID string, status JobStatus, failStep Step) {
	now := time.Now().UTC()

	o.update(jobID, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		if status == StatusFailed && failStep.Name != "" {
			failStep.FinishedAt = now
			j.Steps = append(j.Steps, failStep)
		}
		j.Status = status
		j.CurrentStep = ""
		if status == StatusCompleted {
			j.Progress = 100
		}
		j.FinishedAt = &now
	})

	if o.store != nil {
		snapshot, err := o.Status(jobID)
		if err == nil {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := o.store.SaveJob(saveCtx, snapshot); err != nil {
				o.logger.Error("persist job failed",
					logging.Field{Key: "job_id", Value: jobID},
					logging.Field{Key: "error", Value: err.Error()})
			}
			cancel()
		}
	}

	o.closeSubscribers(jobID)

	o.logger.Info("audit finished",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "status", Value: string(status)})
}

// update mutates the job under the lock and emits a progress event.
func (o *Orchestrator) update(jobID string, mutate func(*Job)) {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	mutate(job)
	event := eventFor(job)
	subs := append([]chan JobEvent(nil), o.subscribers[jobID]...)
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than stall the worker.
		}
	}
}

func (o *Orchestrator) closeSubscribers(jobID string) {
	o.mu.Lock()
	subs := o.subscribers[jobID]
	delete(o.subscribers, jobID)
	o.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

func eventFor(j *Job) JobEvent {
	return JobEvent{
		JobID:       j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		CurrentStep: j.CurrentStep,
		Timestamp:   time.Now().UTC(),
	}
}

// findingsText renders the validation results as plain lines for prompt
// substitution. The security manager sanitizes the whole block afterwards.
func findingsText(results []*validator.ValidationResult) string {
	if len(results) == 0 {
		return "nenhuma validação executada"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s (%.0f/100): %s\n", r.Status, r.ValidationType, r.Score, r.Message)
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  recomendação: %s\n", rec)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// fallbackDocumentation renders a deterministic summary when the model is
// unavailable or its output fails screening.
func fallbackDocumentation(job *Job, results []*validator.ValidationResult) string {
	var failed, warned int
	for _, r := range results {
		switch r.Status {
		case validator.StatusFailed:
			failed++
		case validator.StatusWarning:
			warned++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Auditoria de SEO para %s.\n", job.TargetURL)
	fmt.Fprintf(&b, "Pontuação agregada: %.1f de 100.\n", job.AggregateScore)
	fmt.Fprintf(&b, "Foram executadas %d validações: %d reprovadas, %d com alertas.\n",
		len(results), failed, warned)
	if failed > 0 || warned > 0 {
		b.WriteString("Principais pontos:\n")
		for _, r := range results {
			if r.Status == validator.StatusPassed {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", r.ValidationType, r.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
