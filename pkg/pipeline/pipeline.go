// Package pipeline drives one job through the ordered submission stages:
// initialize, stage inputs, submit and finish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/archive"
	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/deposit"
	"github.com/3leaps/seqsubmit/pkg/fetch"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/project"
)

// Stage names.
const (
	StageInitialize  = "initialize"
	StageStageInputs = "stage_inputs"
	StageSubmit      = "submit"
	StageFinish      = "finish"
)

// AccessionRecorder persists the accessions assigned to a job.
type AccessionRecorder interface {
	SetAccessions(ctx context.Context, jobID, accession, submissionAccession string) error
}

// Deps are the external collaborators used by the stages.
type Deps struct {
	Projects  project.Repository
	Fetcher   fetch.Fetcher
	Converter convert.Converter
	Deposit   deposit.Dialer
	Archive   archive.Submitter

	// Accessions is optional; when nil accessions live only on the Job.
	Accessions AccessionRecorder
}

// DepositCredentials identify the bulk transfer account.
type DepositCredentials struct {
	Host     string
	User     string
	Password string
}

// Settings tune stage behavior.
type Settings struct {
	// StagingDir is the root under which each job gets <StagingDir>/<jobID>.
	StagingDir string

	// StripPrefix is removed from sample file paths to form local paths.
	StripPrefix string

	// Include limits staged files to those matching any doublestar pattern.
	// Empty means all recognized sequence files.
	Include []string

	// Keep leaves the job's staging directory in place after the run.
	Keep bool

	// FetchCredential authorizes downloads from the remote file store.
	FetchCredential fetch.Credential

	Deposit DepositCredentials

	// AnonymousDeposit allows empty deposit credentials (local directory deposit).
	AnonymousDeposit bool

	// CenterName overrides the project institution in submission envelopes.
	CenterName string
}

// StageObserver is told how long each stage took and how it ended.
type StageObserver func(stage string, elapsed time.Duration, err error)

// TransitionFunc persists a job status change. The pipeline does not begin a
// stage until the transition into it has succeeded.
type TransitionFunc func(ctx context.Context, to job.Status) error

// JobContext is the state shared by the stages of one run.
type JobContext struct {
	Job     *job.Job
	Project *project.Project

	// StagingDir is this job's private staging directory.
	StagingDir string

	// SampleAccessions maps sample alias to accession from the first receipt.
	SampleAccessions map[string]string

	Logger *zap.Logger
}

// Stage is one named step. Status is the job status entered before Run.
type Stage struct {
	Name   string
	Status job.Status
	Run    func(ctx context.Context, jc *JobContext) error
}

// Pipeline runs the submission stages.
type Pipeline struct {
	deps     Deps
	settings Settings
	logger   *zap.Logger
	observer StageObserver
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStageObserver registers a callback invoked after every stage.
func WithStageObserver(o StageObserver) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a Pipeline.
func New(deps Deps, settings Settings, opts ...Option) *Pipeline {
	if settings.StripPrefix == "" {
		settings.StripPrefix = fetch.DefaultStripPrefix
	}
	p := &Pipeline{
		deps:     deps,
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the ordered stage list.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: StageInitialize, Status: job.StatusInitializing, Run: p.initialize},
		{Name: StageStageInputs, Status: job.StatusStagingInputs, Run: p.stageInputs},
		{Name: StageSubmit, Status: job.StatusSubmitting, Run: p.submit},
		{Name: StageFinish, Status: job.StatusSubmitted, Run: p.finish},
	}
}

// NewJobContext prepares the shared state for running j.
func (p *Pipeline) NewJobContext(j *job.Job) *JobContext {
	return &JobContext{
		Job:        j,
		StagingDir: filepath.Join(p.settings.StagingDir, j.ID),
		Logger: p.logger.With(
			zap.String("job_id", j.ID),
			zap.String("project_id", j.ProjectID)),
	}
}

// Run executes the stages in order, transitioning before each one and to
// FINISHED after the last. It stops at the first error and returns it; the
// caller decides how to record the failure.
func (p *Pipeline) Run(ctx context.Context, jc *JobContext, transition TransitionFunc) error {
	if !p.settings.Keep {
		defer p.cleanup(jc)
	}

	for _, st := range p.Stages() {
		if err := transition(ctx, st.Status); err != nil {
			return fmt.Errorf("enter %s: %w", st.Name, err)
		}

		start := time.Now()
		err := st.Run(ctx, jc)
		elapsed := time.Since(start)
		if p.observer != nil {
			p.observer(st.Name, elapsed, err)
		}
		if err != nil {
			jc.Logger.Error("Stage failed",
				zap.String("stage", st.Name),
				zap.String("kind", job.KindName(err)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return fmt.Errorf("stage %s: %w", st.Name, err)
		}
		jc.Logger.Info("Stage complete",
			zap.String("stage", st.Name),
			zap.Duration("elapsed", elapsed))
	}

	if err := transition(ctx, job.StatusFinished); err != nil {
		return fmt.Errorf("enter %s: %w", job.StatusFinished, err)
	}
	return nil
}

func (p *Pipeline) cleanup(jc *JobContext) {
	if jc.StagingDir == "" || filepath.Clean(jc.StagingDir) == filepath.Clean(p.settings.StagingDir) {
		return
	}
	if err := os.RemoveAll(jc.StagingDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		jc.Logger.Warn("Failed to remove staging dir",
			zap.String("dir", jc.StagingDir),
			zap.Error(err))
	}
}

func (p *Pipeline) initialize(ctx context.Context, jc *JobContext) error {
	if missing := p.missingConfiguration(); len(missing) > 0 {
		return job.NewError(StageInitialize, job.ErrConfiguration,
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}

	proj, err := p.deps.Projects.GetProject(ctx, jc.Job.ProjectID)
	if err != nil {
		if job.Kind(err) != nil {
			return err
		}
		return job.NewError(StageInitialize, job.ErrStorage, err)
	}
	jc.Project = proj
	jc.Logger.Info("Loaded project",
		zap.String("name", proj.Name),
		zap.Int("samples", len(proj.Samples)))
	return nil
}

func (p *Pipeline) missingConfiguration() []string {
	var missing []string
	if p.deps.Projects == nil {
		missing = append(missing, "project repository")
	}
	if p.deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if p.deps.Converter == nil {
		missing = append(missing, "converter")
	}
	if p.deps.Deposit == nil {
		missing = append(missing, "deposit")
	}
	if p.deps.Archive == nil {
		missing = append(missing, "archive credentials")
	}
	if p.settings.StagingDir == "" {
		missing = append(missing, "staging dir")
	}
	if !p.settings.AnonymousDeposit {
		if p.settings.Deposit.User == "" || p.settings.Deposit.Password == "" {
			missing = append(missing, "deposit credentials")
		}
	}
	return missing
}
