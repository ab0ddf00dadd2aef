package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewJob(t *testing.T) {
	j := New("P1", "alice")
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, "P1", j.ProjectID)
	assert.Equal(t, "alice", j.Owner)
	assert.Equal(t, StatusCreated, j.Status)
	assert.False(t, j.StartTime.IsZero())
	assert.Nil(t, j.EndTime)

	other := New("P1", "alice")
	assert.NotEqual(t, j.ID, other.ID)
}

func TestJobView(t *testing.T) {
	end := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	j := &Job{ID: "j1", ProjectID: "P1", Owner: "bob", Status: StatusFinished, EndTime: &end, Accession: "ERP1"}

	v := j.View()
	assert.Equal(t, "j1", v.ID)
	assert.Equal(t, StatusFinished, v.Status)
	if assert.NotNil(t, v.EndTime) {
		assert.Equal(t, end, *v.EndTime)
		assert.NotSame(t, j.EndTime, v.EndTime)
	}
}

func TestOwnedBy(t *testing.T) {
	j := &Job{Owner: "alice"}
	assert.True(t, j.OwnedBy(""))
	assert.True(t, j.OwnedBy("alice"))
	assert.False(t, j.OwnedBy("bob"))
}
