// Package scheduler is the job manager: it recovers interrupted jobs at
// startup, discovers projects awaiting submission, and launches pipelines
// within a concurrency limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/pipeline"
	"github.com/3leaps/seqsubmit/pkg/project"
)

// Defaults for Config.
const (
	DefaultInterval     = 5 * time.Second
	DefaultInitialDelay = 5 * time.Second
	DefaultMaxRunning   = 2
)

// Store is the durable job store the scheduler owns.
type Store interface {
	Insert(ctx context.Context, j *job.Job) error
	GetByID(ctx context.Context, id string) (*job.Job, error)
	GetByProjectID(ctx context.Context, projectID string) (*job.Job, error)
	ListAll(ctx context.Context) ([]*job.Job, error)
	ListForOwner(ctx context.Context, owner string) ([]*job.Job, error)
	ListActive(ctx context.Context) ([]*job.Job, error)
	UpdateStatus(ctx context.Context, id string, status job.Status, at time.Time) (*time.Time, error)
	ResetActiveToStopped(ctx context.Context) (int64, error)
	History(ctx context.Context, id string) ([]job.HistoryEntry, error)
}

// Runner drives one job through the submission stages.
type Runner interface {
	NewJobContext(j *job.Job) *pipeline.JobContext
	Run(ctx context.Context, jc *pipeline.JobContext, transition pipeline.TransitionFunc) error
}

// Metrics receives job lifecycle events.
type Metrics interface {
	JobCreated(ctx context.Context)
	JobStarted(ctx context.Context)
	JobCompleted(ctx context.Context, status job.Status, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) JobCreated(context.Context) {}
func (nopMetrics) JobStarted(context.Context) {}
func (nopMetrics) JobCompleted(context.Context, job.Status, time.Duration) {}

// Config controls polling and admission.
type Config struct {
	// Enabled makes this process the leader that resets and polls. A
	// follower only serves reads.
	Enabled bool

	Interval     time.Duration
	InitialDelay time.Duration

	// MaxRunning bounds jobs past CREATED and not yet terminal.
	MaxRunning int

	// Discover creates jobs for eligible projects on every tick.
	Discover bool
}

// DefaultConfig returns the leader configuration with default timings.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Interval:     DefaultInterval,
		InitialDelay: DefaultInitialDelay,
		MaxRunning:   DefaultMaxRunning,
		Discover:     true,
	}
}

// Scheduler owns the job store and drives jobs through the pipeline.
type Scheduler struct {
	store    Store
	projects project.Repository
	runner   Runner
	cfg      Config
	logger   *zap.Logger
	metrics  Metrics
	now      func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
	lastTick atomic.Int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the default configuration. Zero durations and limits
// fall back to the defaults.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the lifecycle metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Scheduler. projects and runner may be nil for read-only use.
func New(store Store, projects project.Repository, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		projects: projects,
		runner:   runner,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		metrics:  nopMetrics{},
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Interval <= 0 {
		s.cfg.Interval = DefaultInterval
	}
	if s.cfg.InitialDelay < 0 {
		s.cfg.InitialDelay = 0
	}
	if s.cfg.MaxRunning <= 0 {
		s.cfg.MaxRunning = DefaultMaxRunning
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start resets interrupted jobs and polls until ctx is done. A follower
// returns immediately without touching the store.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled, running as follower")
		return nil
	}
	if s.runner == nil {
		return job.NewError("start scheduler", job.ErrConfiguration, errors.New("pipeline runner is required"))
	}
	if err := s.Reset(ctx); err != nil {
		return err
	}

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("initial_delay", s.cfg.InitialDelay),
		zap.Int("max_running", s.cfg.MaxRunning))

	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-timer.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("Scheduler tick failed", zap.Error(err))
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// Reset moves every non-terminal job to STOPPED. Work interrupted by a
// restart is never resumed.
func (s *Scheduler) Reset(ctx context.Context) error {
	n, err := s.store.ResetActiveToStopped(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("Stopped jobs interrupted by restart", zap.Int64("count", n))
	}
	return nil
}

// Tick runs one poll: discover eligible projects, then launch CREATED jobs
// while the running count is under the limit. It never waits for launched
// jobs.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.lastTick.Store(s.now().UnixNano())

	var discoverErr error
	if s.cfg.Discover && s.projects != nil {
		discoverErr = s.discover(ctx)
	}

	active, err := s.store.ListActive(ctx)
	if err != nil {
		return errors.Join(discoverErr, err)
	}

	s.mu.Lock()
	running := 0
	for _, j := range active {
		if _, ok := s.inflight[j.ID]; ok || j.Status.IsRunning() {
			running++
		}
	}
	var launch []*job.Job
	for _, j := range active {
		if running >= s.cfg.MaxRunning {
			break
		}
		if j.Status != job.StatusCreated {
			continue
		}
		if _, ok := s.inflight[j.ID]; ok {
			continue
		}
		s.inflight[j.ID] = struct{}{}
		running++
		launch = append(launch, j)
	}
	s.mu.Unlock()

	for _, j := range launch {
		s.launch(ctx, j)
	}
	return discoverErr
}

func (s *Scheduler) discover(ctx context.Context) error {
	eligible, err := s.projects.ListEligibleProjects(ctx)
	if err != nil {
		return fmt.Errorf("list eligible projects: %w", err)
	}
	if len(eligible) == 0 {
		return nil
	}

	active, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	busy := make(map[string]bool, len(active))
	for _, j := range active {
		busy[j.ProjectID] = true
	}

	for _, p := range eligible {
		if busy[p.ID] {
			continue
		}
		if _, err := s.insert(ctx, p.ID, p.Owner); err != nil {
			if errors.Is(err, job.ErrActiveJobExists) {
				continue
			}
			s.logger.Error("Failed to create job",
				zap.String("project_id", p.ID),
				zap.Error(err))
			continue
		}
		busy[p.ID] = true
	}
	return nil
}

func (s *Scheduler) insert(ctx context.Context, projectID, owner string) (*job.Job, error) {
	j := job.New(projectID, owner)
	j.StartTime = s.now()
	if err := s.store.Insert(ctx, j); err != nil {
		return nil, err
	}
	s.metrics.JobCreated(ctx)
	s.logger.Info("Job created",
		zap.String("job_id", j.ID),
		zap.String("project_id", projectID),
		zap.String("owner", owner))
	return j, nil
}

func (s *Scheduler) launch(ctx context.Context, j *job.Job) {
	s.wg.Add(1)
	// Jobs outlive the poll loop: shutdown leaves them at their last
	// persisted status and the next startup stops them.
	jobCtx := context.WithoutCancel(ctx)
	go s.execute(jobCtx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job.Job) {
	start := s.now()
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, j.ID)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error("Job panicked", zap.String("job_id", j.ID), zap.Error(err))
			s.fail(ctx, j, err)
			s.metrics.JobCompleted(ctx, j.Status, s.now().Sub(start))
		}
	}()

	s.metrics.JobStarted(ctx)
	s.setPublication(ctx, j.ProjectID, project.PublicationInProgress)

	jc := s.runner.NewJobContext(j)
	err := s.runner.Run(ctx, jc, func(ctx context.Context, to job.Status) error {
		return s.transition(ctx, j, to)
	})
	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job_id", j.ID),
			zap.String("project_id", j.ProjectID),
			zap.String("status", string(j.Status)),
			zap.String("kind", job.KindName(err)),
			zap.Strings("archive_messages", job.RejectionMessages(err)),
			zap.Error(err))
		s.fail(ctx, j, err)
	} else {
		s.setPublication(ctx, j.ProjectID, project.PublicationPublished)
		s.logger.Info("Job finished",
			zap.String("job_id", j.ID),
			zap.String("project_id", j.ProjectID),
			zap.String("accession", j.Accession))
	}
	s.metrics.JobCompleted(ctx, j.Status, s.now().Sub(start))
}

// transition persists the move of j to status to and only then updates j.
// Re-applying the current status is a no-op.
func (s *Scheduler) transition(ctx context.Context, j *job.Job, to job.Status) error {
	if j.Status == to {
		return nil
	}
	if !j.Status.CanTransition(to) {
		e := job.NewError("transition", job.ErrInvalidTransition, fmt.Errorf("%s -> %s", j.Status, to))
		e.JobID = j.ID
		return e
	}

	end, err := s.store.UpdateStatus(ctx, j.ID, to, s.now())
	if err != nil {
		return err
	}
	from := j.Status
	j.Status = to
	j.EndTime = end

	s.logger.Info("Job transition",
		zap.String("job_id", j.ID),
		zap.String("project_id", j.ProjectID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return nil
}

// fail is best effort: a failure to record FAILED is logged, never returned.
func (s *Scheduler) fail(ctx context.Context, j *job.Job, cause error) {
	if j.Status.IsTerminal() {
		return
	}
	if err := s.transition(ctx, j, job.StatusFailed); err != nil {
		s.logger.Error("Failed to mark job failed",
			zap.String("job_id", j.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

func (s *Scheduler) setPublication(ctx context.Context, projectID string, status project.PublicationStatus) {
	tracker, ok := s.projects.(project.PublicationTracker)
	if !ok {
		return
	}
	if err := tracker.SetPublicationStatus(ctx, projectID, status); err != nil {
		s.logger.Warn("Failed to update publication status",
			zap.String("project_id", projectID),
			zap.Int("publication_status", int(status)),
			zap.Error(err))
	}
}

// Wait blocks until every launched job has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// InFlight returns the number of jobs launched by this process that have not
// returned yet.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// LastTick returns when the poll loop last ran, or the zero time.
func (s *Scheduler) LastTick() time.Time {
	n := s.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
