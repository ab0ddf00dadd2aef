package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// CreateJob creates and persists a CREATED job for projectID. It fails with
// ErrActiveJobExists when the project already has a non-terminal job.
func (s *Scheduler) CreateJob(ctx context.Context, projectID, owner string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", job.NewError("create job", job.ErrConfiguration, errors.New("project id is required"))
	}
	if s.projects != nil {
		if _, err := s.projects.GetProject(ctx, projectID); err != nil {
			return "", err
		}
	}
	if existing, err := s.store.GetByProjectID(ctx, projectID); err == nil && !existing.Status.IsTerminal() {
		e := job.NewError("create job", job.ErrActiveJobExists, fmt.Errorf("project %s has job %s", projectID, existing.ID))
		e.JobID = existing.ID
		return "", e
	} else if err != nil && !job.IsNotFound(err) {
		return "", err
	}

	j, err := s.insert(ctx, projectID, owner)
	if err != nil {
		return "", err
	}
	return j.ID, nil
}

// GetJob returns the job with id. A non-empty owner restricts the lookup to
// that owner's jobs; other owners' jobs read as not found.
func (s *Scheduler) GetJob(ctx context.Context, id, owner string) (job.View, error) {
	j, err := s.store.GetByID(ctx, id)
	if err != nil {
		return job.View{}, err
	}
	if !j.OwnedBy(owner) {
		return job.View{}, job.NewError("get job", job.ErrNotFound, fmt.Errorf("job %s", id))
	}
	return j.View(), nil
}

// GetJobByProject returns the current job for projectID, preferring an
// active one.
func (s *Scheduler) GetJobByProject(ctx context.Context, projectID, owner string) (job.View, error) {
	j, err := s.store.GetByProjectID(ctx, projectID)
	if err != nil {
		return job.View{}, err
	}
	if !j.OwnedBy(owner) {
		return job.View{}, job.NewError("get job by project", job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	return j.View(), nil
}

// ListJobs returns jobs newest first, restricted to owner when non-empty.
func (s *Scheduler) ListJobs(ctx context.Context, owner string) ([]job.View, error) {
	var (
		jobs []*job.Job
		err  error
	)
	if owner == "" {
		jobs, err = s.store.ListAll(ctx)
	} else {
		jobs, err = s.store.ListForOwner(ctx, owner)
	}
	if err != nil {
		return nil, err
	}
	out := make([]job.View, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.View())
	}
	return out, nil
}

// GetJobHistory returns the persisted status changes of a job, oldest first.
func (s *Scheduler) GetJobHistory(ctx context.Context, id, owner string) ([]job.HistoryEntry, error) {
	if _, err := s.GetJob(ctx, id, owner); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// FindJob resolves a full job id or a unique id prefix.
func (s *Scheduler) FindJob(ctx context.Context, idOrPrefix, owner string) (job.View, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return job.View{}, job.NewError("find job", job.ErrNotFound, errors.New("job id is required"))
	}
	v, err := s.GetJob(ctx, idOrPrefix, owner)
	if err == nil || !job.IsNotFound(err) {
		return v, err
	}

	all, err := s.ListJobs(ctx, owner)
	if err != nil {
		return job.View{}, err
	}
	var matches []job.View
	for _, j := range all {
		if strings.HasPrefix(j.ID, idOrPrefix) {
			matches = append(matches, j)
		}
	}
	switch len(matches) {
	case 0:
		return job.View{}, job.NewError("find job", job.ErrNotFound, fmt.Errorf("job %s", idOrPrefix))
	case 1:
		return matches[0], nil
	default:
		return job.View{}, job.NewError("find job", job.ErrNotFound,
			fmt.Errorf("job prefix %q is ambiguous (%d matches)", idOrPrefix, len(matches)))
	}
}
