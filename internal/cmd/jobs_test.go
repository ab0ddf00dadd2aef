package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/internal/config"
	"github.com/3leaps/seqsubmit/pkg/job"
)

const cliProjects = `projects:
  - id: "P1"
    name: Ocean survey
    owner: alice
    publication_status: 1
  - id: "P2"
    name: Soil survey
    owner: bob
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	projects := filepath.Join(dir, "projects.yaml")
	require.NoError(t, os.WriteFile(projects, []byte(cliProjects), 0o600))
	return &config.Config{
		Store:    config.StoreConfig{Path: filepath.Join(dir, "jobs.db")},
		Projects: config.ProjectsConfig{Driver: "yaml", File: projects},
	}
}

func TestJobService_CreateAndInspect(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	svc, closeFn, err := jobService(ctx, cfg, true)
	require.NoError(t, err)

	id, err := svc.CreateJob(ctx, "P1", "alice")
	require.NoError(t, err)

	_, err = svc.CreateJob(ctx, "P1", "alice")
	assert.ErrorIs(t, err, job.ErrActiveJobExists)

	_, err = svc.CreateJob(ctx, "missing", "alice")
	assert.True(t, job.IsNotFound(err))
	closeFn()

	// A read-only service on the same store sees the job.
	ro, closeRO, err := jobService(ctx, cfg, false)
	require.NoError(t, err)
	defer closeRO()

	v, err := ro.FindJob(ctx, id[:8], "")
	require.NoError(t, err)
	assert.Equal(t, "P1", v.ProjectID)
	assert.Equal(t, job.StatusCreated, v.Status)

	_, err = ro.FindJob(ctx, id, "bob")
	assert.True(t, job.IsNotFound(err), "other owners' jobs are hidden")

	history, err := ro.GetJobHistory(ctx, id, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, job.StatusCreated, history[0].Status)
}

func TestJobService_BadProjectsDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Projects.Driver = "csv"

	_, _, err := jobService(context.Background(), cfg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported projects.driver "csv"`)
}

func sampleViews() []job.View {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	return []job.View{
		{ID: "b2", ProjectID: "P2", Status: job.StatusSubmitting, StartTime: start.Add(time.Hour)},
		{ID: "a1", ProjectID: "P1", Owner: "alice", Status: job.StatusFinished, StartTime: start, EndTime: &end},
	}
}

func TestWriteJobs(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJobs(&buf, sampleViews(), false))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 3)
		assert.Contains(t, string(lines[0]), "ID")
		assert.Contains(t, string(lines[0]), "STATUS")
		assert.Contains(t, string(lines[1]), "SUBMITTING")
		assert.Contains(t, string(lines[1]), "-")
		assert.Contains(t, string(lines[2]), "2026-03-01T11:00:00Z")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJobs(&buf, sampleViews(), true))

		var got []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "b2", got[0]["id"])
		assert.NotContains(t, got[0], "end_time")
		assert.Equal(t, "FINISHED", got[1]["status"])
	})

	t.Run("empty json is an array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJobs(&buf, nil, true))
		assert.Equal(t, "[]\n", buf.String())
	})
}

func TestWriteJob(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJob(&buf, sampleViews()[1], false))

	out := buf.String()
	assert.Contains(t, out, "Project:")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "FINISHED")
	assert.Contains(t, out, "2026-03-01T09:00:00Z")
}

func TestWriteHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []job.HistoryEntry{
		{JobID: "a1", Status: job.StatusCreated, ChangedAt: at},
		{JobID: "a1", Status: job.StatusInitializing, ChangedAt: at.Add(time.Second)},
	}

	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, history, false))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[2]), "INITIALIZING")

	buf.Reset()
	require.NoError(t, writeHistory(&buf, nil, true))
	assert.Equal(t, "[]\n", buf.String())
}
