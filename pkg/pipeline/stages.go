package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/archive"
	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/deposit"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/project"
)

func transportError(op string, err error) error {
	if job.Kind(err) != nil {
		return err
	}
	return job.NewError(op, job.ErrTransport, err)
}

func (p *Pipeline) stageInputs(ctx context.Context, jc *JobContext) error {
	creds := p.settings.Deposit
	session, err := p.deps.Deposit.Connect(ctx, creds.Host, creds.User, creds.Password)
	if err != nil {
		return transportError("deposit connect", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			jc.Logger.Warn("Failed to close deposit session", zap.Error(err))
		}
	}()

	files, err := ResolveFiles(jc.Project, p.settings.Include)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return job.NewError(StageStageInputs, job.ErrNoInputFiles,
			fmt.Errorf("project %s has no FASTA or FASTQ inputs", jc.Project.ID))
	}

	// Fail on unsupported formats before anything is downloaded. Remote
	// names only depend on the planned output paths, so they are fixed here.
	for i := range files {
		files[i].LocalPath = LocalPath(jc.StagingDir, files[i].SourcePath, p.settings.StripPrefix)
		output, _, err := convert.Plan(files[i].LocalPath)
		if err != nil {
			return err
		}
		files[i].ConvertedPath = output
	}
	AssignRemoteNames(files)
	jc.Logger.Info("Resolved input files", zap.Int("count", len(files)))

	for i := range files {
		if err := p.stageFile(ctx, jc, session, &files[i]); err != nil {
			return err
		}
	}

	jc.Job.Files = files
	return nil
}

// stageFile fetches, converts, checksums and uploads one file. The next file
// is not touched until this one is in the deposit area.
func (p *Pipeline) stageFile(ctx context.Context, jc *JobContext, session deposit.Session, f *job.FileDescriptor) error {
	// #nosec G301 -- staging directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(filepath.Dir(f.LocalPath), 0755); err != nil {
		return job.NewError(StageStageInputs, job.ErrStaging, fmt.Errorf("create staging dir: %w", err))
	}

	if err := p.deps.Fetcher.Fetch(ctx, f.SourcePath, f.LocalPath, p.settings.FetchCredential); err != nil {
		return transportError("fetch", err)
	}

	converted, err := p.deps.Converter.Convert(ctx, f.LocalPath)
	if err != nil {
		return err
	}
	f.ConvertedPath = converted

	sum, err := Checksum(converted)
	if err != nil {
		return job.NewError(StageStageInputs, job.ErrStaging, err)
	}
	f.Checksum = sum

	if err := session.Upload(ctx, f.ConvertedPath, f.RemoteName); err != nil {
		return transportError("deposit upload", fmt.Errorf("%s: %w", f.RemoteName, err))
	}
	jc.Logger.Info("Uploaded file",
		zap.String("source", f.SourcePath),
		zap.String("remote_name", f.RemoteName),
		zap.String("checksum", sum))
	return nil
}

func (p *Pipeline) submit(ctx context.Context, jc *JobContext) error {
	b := archive.Builder{JobID: jc.Job.ID, CenterName: p.settings.CenterName}
	proj := jc.Project

	if err := b.Validate(proj); err != nil {
		return err
	}
	projectDoc, err := b.Project(proj)
	if err != nil {
		return err
	}
	sampleDoc, err := b.Samples(proj)
	if err != nil {
		return err
	}

	receipt, err := p.deps.Archive.Submit(ctx, archive.Documents{
		Submission: b.Submission(proj),
		Project:    &projectDoc,
		Sample:     &sampleDoc,
	})
	if err != nil {
		return transportError("submit project", err)
	}

	accession := receipt.ProjectAccession()
	if accession == "" {
		return job.NewError("submit project", job.ErrSubmissionRejected, errors.New("receipt carried no project accession"))
	}
	jc.Job.Accession = accession
	jc.Job.SubmissionAccession = receipt.SubmissionAccession()
	jc.SampleAccessions = receipt.SampleAccessions()
	jc.Logger.Info("Project accepted",
		zap.String("accession", accession),
		zap.String("submission_accession", jc.Job.SubmissionAccession))

	experiments, runs, err := b.ExperimentsAndRuns(proj, accession, jc.SampleAccessions, jc.Job.Files)
	if err != nil {
		return err
	}
	if _, err := p.deps.Archive.Submit(ctx, archive.Documents{
		Submission: b.Submission(proj),
		Experiment: &experiments,
		Run:        &runs,
	}); err != nil {
		return transportError("submit runs", err)
	}
	jc.Logger.Info("Runs accepted", zap.Int("runs", len(runs.Runs)))

	if _, err := p.deps.Archive.Release(ctx, accession); err != nil {
		return transportError("release", err)
	}
	jc.Logger.Info("Release requested", zap.String("accession", accession))
	return nil
}

func (p *Pipeline) finish(ctx context.Context, jc *JobContext) error {
	if p.deps.Accessions != nil {
		if err := p.deps.Accessions.SetAccessions(ctx, jc.Job.ID, jc.Job.Accession, jc.Job.SubmissionAccession); err != nil {
			return err
		}
	}

	err := p.deps.Projects.UpdateProjectVisibility(ctx, jc.Job.ProjectID, project.Visibility{
		Private:   false,
		Accession: jc.Job.Accession,
	})
	if err != nil {
		if job.Kind(err) != nil {
			return err
		}
		return job.NewError(StageFinish, job.ErrStorage, err)
	}
	return nil
}
