package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/pipeline/pipelinetest"
)

func TestCreateJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1), pipelinetest.SampleProject("P1"))

	id, err := f.sched.CreateJob(ctx, "P1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	v, err := f.sched.GetJob(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCreated, v.Status)
	assert.Nil(t, v.EndTime)

	_, err = f.sched.CreateJob(ctx, "P1", "alice")
	require.ErrorIs(t, err, job.ErrActiveJobExists)

	_, err = f.sched.CreateJob(ctx, "missing", "alice")
	require.ErrorIs(t, err, job.ErrNotFound)

	_, err = f.sched.CreateJob(ctx, " ", "alice")
	require.ErrorIs(t, err, job.ErrConfiguration)
}

func TestCreateJob_AfterTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1), pipelinetest.SampleProject("P1"))

	old := job.New("P1", "alice")
	old.Status = job.StatusFailed
	require.NoError(t, f.store.Insert(ctx, old))

	id, err := f.sched.CreateJob(ctx, "P1", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, id)

	v, err := f.sched.GetJobByProject(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1), pipelinetest.SampleProject("P1"), pipelinetest.SampleProject("P2"))

	a, err := f.sched.CreateJob(ctx, "P1", "alice")
	require.NoError(t, err)
	_, err = f.sched.CreateJob(ctx, "P2", "bob")
	require.NoError(t, err)

	_, err = f.sched.GetJob(ctx, a, "bob")
	assert.True(t, job.IsNotFound(err))
	_, err = f.sched.GetJobByProject(ctx, "P1", "bob")
	assert.True(t, job.IsNotFound(err))
	_, err = f.sched.GetJobHistory(ctx, a, "bob")
	assert.True(t, job.IsNotFound(err))

	mine, err := f.sched.ListJobs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a, mine[0].ID)

	all, err := f.sched.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	h, err := f.sched.GetJobHistory(ctx, a, "alice")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, job.StatusCreated, h[0].Status)
}

func TestFindJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leader(1))

	for _, id := range []string{"abc-111", "abd-222"} {
		j := job.New("project-"+id, "alice")
		j.ID = id
		require.NoError(t, f.store.Insert(ctx, j))
	}

	v, err := f.sched.FindJob(ctx, "abc-111", "")
	require.NoError(t, err)
	assert.Equal(t, "abc-111", v.ID)

	v, err = f.sched.FindJob(ctx, "abd", "")
	require.NoError(t, err)
	assert.Equal(t, "abd-222", v.ID)

	_, err = f.sched.FindJob(ctx, "ab", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = f.sched.FindJob(ctx, "zzz", "")
	assert.True(t, job.IsNotFound(err))
}
