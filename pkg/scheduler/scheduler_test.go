package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/jobstore"
	"github.com/3leaps/seqsubmit/pkg/pipeline"
	"github.com/3leaps/seqsubmit/pkg/pipeline/pipelinetest"
	"github.com/3leaps/seqsubmit/pkg/project"
)

const fastaBody = ">read1\nACGT\n"

type countingMetrics struct {
	created, started, completed atomic.Int64
	failed                      atomic.Int64
}

func (m *countingMetrics) JobCreated(context.Context) { m.created.Add(1) }
func (m *countingMetrics) JobStarted(context.Context) { m.started.Add(1) }
func (m *countingMetrics) JobCompleted(_ context.Context, s job.Status, _ time.Duration) {
	m.completed.Add(1)
	if s == job.StatusFailed {
		m.failed.Add(1)
	}
}

type fixture struct {
	store    *jobstore.Store
	projects *pipelinetest.Projects
	fetcher  *pipelinetest.Fetcher
	deposit  *pipelinetest.Deposit
	archive  *pipelinetest.Archive
	metrics  *countingMetrics
	sched    *Scheduler
}

func newFixture(t *testing.T, cfg Config, projects ...*project.Project) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	files := map[string]string{}
	for _, p := range projects {
		for _, s := range p.Samples {
			for _, f := range s.Files {
				files[f.Path] = fastaBody
			}
		}
	}

	f := &fixture{
		store:    store,
		projects: pipelinetest.NewProjects(projects...),
		fetcher:  pipelinetest.NewFetcher(files),
		deposit:  pipelinetest.NewDeposit(),
		archive:  pipelinetest.NewArchive("ERP000001"),
		metrics:  &countingMetrics{},
	}
	runner := pipeline.New(pipeline.Deps{
		Projects:   f.projects,
		Fetcher:    f.fetcher,
		Converter:  &convert.Builtin{},
		Deposit:    f.deposit,
		Archive:    f.archive,
		Accessions: store,
	}, pipeline.Settings{
		StagingDir: t.TempDir(),
		Deposit:    pipeline.DepositCredentials{Host: "h", User: "u", Password: "p"},
	})
	f.sched = New(store, f.projects, runner, WithConfig(cfg), WithMetrics(f.metrics))
	return f
}

func leader(maxRunning int) Config {
	cfg := DefaultConfig()
	cfg.MaxRunning = maxRunning
	cfg.InitialDelay = 0
	cfg.Interval = 10 * time.Millisecond
	return cfg
}

func historyStatuses(t *testing.T, s *jobstore.Store, id string) []job.Status {
	t.Helper()
	h, err := s.History(context.Background(), id)
	require.NoError(t, err)
	out := make([]job.Status, len(h))
	for i, e := range h {
		out[i] = e.Status
	}
	return out
}

func TestTick_DiscoversAndFinishesProject(t *testing.T) {
	ctx := context.Background()
	p := pipelinetest.SampleProject("P1", "/iplant/home/alice/reads.fasta")
	f := newFixture(t, leader(2), p)

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	v, err := f.sched.GetJobByProject(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFinished, v.Status)
	require.NotNil(t, v.EndTime)
	assert.Equal(t, "alice", v.Owner)

	assert.Equal(t, []job.Status{
		job.StatusCreated,
		job.StatusInitializing,
		job.StatusStagingInputs,
		job.StatusSubmitting,
		job.StatusSubmitted,
		job.StatusFinished,
	}, historyStatuses(t, f.store, v.ID))

	stored, _ := f.projects.Get("P1")
	assert.False(t, stored.Private)
	assert.Equal(t, "ERP000001", stored.Accession)
	assert.Equal(t, []project.PublicationStatus{project.PublicationInProgress, project.PublicationPublished}, f.projects.Statuses["P1"])

	persisted, err := f.store.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "ERP000001", persisted.Accession)
	assert.Equal(t, "ERA000001", persisted.SubmissionAccession)

	// Published projects are no longer eligible.
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	all, err := f.sched.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, int64(1), f.metrics.created.Load())
	assert.Equal(t, int64(1), f.metrics.completed.Load())
	assert.Equal(t, int64(0), f.metrics.failed.Load())
}

func TestTick_FetchFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	p := pipelinetest.SampleProject("P2", "/iplant/home/alice/reads.fasta")
	f := newFixture(t, leader(2), p)
	f.fetcher.Errors["/iplant/home/alice/reads.fasta"] = errors.New("timeout")

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	v, err := f.sched.GetJobByProject(ctx, "P2", "")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, v.Status)
	require.NotNil(t, v.EndTime)
	assert.Equal(t, []job.Status{
		job.StatusCreated,
		job.StatusInitializing,
		job.StatusStagingInputs,
		job.StatusFailed,
	}, historyStatuses(t, f.store, v.ID))

	stored, _ := f.projects.Get("P2")
	assert.True(t, stored.Private)
	assert.Empty(t, stored.Accession)
	assert.Equal(t, int64(1), f.metrics.failed.Load())
}

func TestTick_RespectsConcurrencyLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1),
		pipelinetest.SampleProject("P1", "/a/p1.fasta"),
		pipelinetest.SampleProject("P2", "/a/p2.fasta"),
		pipelinetest.SampleProject("P3", "/a/p3.fasta"),
	)
	block := make(chan struct{})
	f.fetcher.Block = block

	require.NoError(t, f.sched.Tick(ctx))
	active, err := f.store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	assert.Equal(t, 1, f.sched.InFlight())

	// A second tick while the first job is still running launches nothing.
	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 1, f.sched.InFlight())
	assert.Equal(t, int64(1), f.metrics.started.Load())

	close(block)
	f.sched.Wait()
	assert.Equal(t, 0, f.sched.InFlight())

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	all, err := f.sched.ListJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, v := range all {
		assert.Equal(t, job.StatusFinished, v.Status, v.ProjectID)
	}
	assert.Equal(t, int64(3), f.metrics.started.Load())
}

func TestReset_StopsActiveJobsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(2))

	statuses := []job.Status{
		job.StatusCreated, job.StatusInitializing, job.StatusStagingInputs,
		job.StatusSubmitting, job.StatusSubmitted, job.StatusFinished, job.StatusFailed,
	}
	ids := make(map[job.Status]string)
	for i, st := range statuses {
		j := job.New("project-"+string(rune('a'+i)), "alice")
		j.Status = st
		require.NoError(t, f.store.Insert(ctx, j))
		ids[st] = j.ID
	}

	require.NoError(t, f.sched.Reset(ctx))

	for st, id := range ids {
		got, err := f.store.GetByID(ctx, id)
		require.NoError(t, err)
		switch st {
		case job.StatusFinished, job.StatusFailed:
			assert.Equal(t, st, got.Status)
		default:
			assert.Equal(t, job.StatusStopped, got.Status, "was %s", st)
		}
		assert.NotNil(t, got.EndTime)
	}
}

func TestStart_PollsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, leader(2), pipelinetest.SampleProject("P1", "/a/p1.fasta"))

	// An interrupted job from a previous run.
	stale := job.New("old", "bob")
	stale.Status = job.StatusSubmitting
	require.NoError(t, f.store.Insert(ctx, stale))

	done := make(chan error, 1)
	go func() { done <- f.sched.Start(ctx) }()

	require.Eventually(t, func() bool {
		v, err := f.sched.GetJobByProject(context.Background(), "P1", "")
		return err == nil && v.Status == job.StatusFinished
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	f.sched.Wait()
	assert.False(t, f.sched.LastTick().IsZero())

	got, err := f.store.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusStopped, got.Status)
}

func TestStart_FollowerDoesNothing(t *testing.T) {
	ctx := context.Background()
	cfg := leader(2)
	cfg.Enabled = false
	f := newFixture(t, cfg, pipelinetest.SampleProject("P1", "/a/p1.fasta"))

	running := job.New("old", "bob")
	running.Status = job.StatusStagingInputs
	require.NoError(t, f.store.Insert(ctx, running))

	require.NoError(t, f.sched.Start(ctx))

	got, err := f.store.GetByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusStagingInputs, got.Status)

	_, err = f.sched.GetJobByProject(ctx, "P1", "")
	assert.True(t, job.IsNotFound(err))
}

type panicRunner struct{}

func (panicRunner) NewJobContext(j *job.Job) *pipeline.JobContext {
	return &pipeline.JobContext{Job: j}
}

func (panicRunner) Run(ctx context.Context, _ *pipeline.JobContext, transition pipeline.TransitionFunc) error {
	if err := transition(ctx, job.StatusInitializing); err != nil {
		return err
	}
	panic("boom")
}

func TestExecute_RecoversPanic(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	s := New(store, nil, panicRunner{}, WithConfig(leader(1)))
	id, err := s.CreateJob(ctx, "P1", "alice")
	require.NoError(t, err)

	require.NoError(t, s.Tick(ctx))
	s.Wait()

	v, err := s.GetJob(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, v.Status)
	assert.NotNil(t, v.EndTime)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1))

	j := job.New("P1", "alice")
	require.NoError(t, f.store.Insert(ctx, j))

	// Re-applying the current status writes nothing.
	require.NoError(t, f.sched.transition(ctx, j, job.StatusCreated))
	assert.Len(t, historyStatuses(t, f.store, j.ID), 1)

	err := f.sched.transition(ctx, j, job.StatusSubmitting)
	require.ErrorIs(t, err, job.ErrInvalidTransition)
	assert.Equal(t, job.StatusCreated, j.Status)

	require.NoError(t, f.sched.transition(ctx, j, job.StatusInitializing))
	assert.Nil(t, j.EndTime)
	require.NoError(t, f.sched.transition(ctx, j, job.StatusFailed))
	require.NotNil(t, j.EndTime)

	err = f.sched.transition(ctx, j, job.StatusInitializing)
	require.ErrorIs(t, err, job.ErrInvalidTransition)
}

func TestTransition_StorageFailureLeavesJobUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1))

	j := job.New("P1", "alice")
	require.NoError(t, f.store.Insert(ctx, j))
	require.NoError(t, f.store.Close())

	err := f.sched.transition(ctx, j, job.StatusInitializing)
	require.Error(t, err)
	assert.Equal(t, job.StatusCreated, j.Status)
}
