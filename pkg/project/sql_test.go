package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/pkg/job"
)

var fixtureStatements = []string{
	"CREATE TABLE `user` (user_id INTEGER PRIMARY KEY, user_name TEXT NOT NULL)",
	`CREATE TABLE project (
		project_id INTEGER PRIMARY KEY,
		project_code TEXT,
		project_name TEXT NOT NULL,
		description TEXT,
		institution TEXT,
		private INTEGER NOT NULL DEFAULT 1,
		ebi_accno TEXT,
		publication_status INTEGER NOT NULL DEFAULT 0,
		ebi_submitter_id INTEGER
	)`,
	`CREATE TABLE publication (publication_id INTEGER PRIMARY KEY, project_id INTEGER, title TEXT, pubmed_id TEXT)`,
	`CREATE TABLE sample (sample_id INTEGER PRIMARY KEY, project_id INTEGER, sample_acc TEXT, sample_name TEXT)`,
	`CREATE TABLE sample_attr_type (sample_attr_type_id INTEGER PRIMARY KEY, type TEXT NOT NULL)`,
	`CREATE TABLE sample_attr (sample_attr_id INTEGER PRIMARY KEY, sample_id INTEGER, sample_attr_type_id INTEGER, attr_value TEXT)`,
	`CREATE TABLE sample_file_type (sample_file_type_id INTEGER PRIMARY KEY, type TEXT NOT NULL)`,
	`CREATE TABLE sample_file (sample_file_id INTEGER PRIMARY KEY, sample_id INTEGER, file TEXT NOT NULL, sample_file_type_id INTEGER)`,

	"INSERT INTO `user` (user_id, user_name) VALUES (7, 'alice')",
	`INSERT INTO project (project_id, project_code, project_name, description, institution, private, publication_status, ebi_submitter_id)
		VALUES (1, 'OCEAN', 'Ocean survey', 'Surface water', 'Example Lab', 1, 1, 7)`,
	`INSERT INTO project (project_id, project_name, publication_status) VALUES (2, 'Draft', 0)`,
	`INSERT INTO publication (publication_id, project_id, title, pubmed_id) VALUES (1, 1, 'Paper', '12345')`,
	`INSERT INTO publication (publication_id, project_id, title, pubmed_id) VALUES (2, 1, 'Preprint', NULL)`,
	`INSERT INTO sample (sample_id, project_id, sample_acc, sample_name) VALUES (10, 1, NULL, 'station 4')`,
	`INSERT INTO sample_attr_type (sample_attr_type_id, type) VALUES (1, 'taxon_id'), (2, 'library_strategy')`,
	`INSERT INTO sample_attr (sample_attr_id, sample_id, sample_attr_type_id, attr_value) VALUES (1, 10, 1, '408172'), (2, 10, 2, 'wgs')`,
	`INSERT INTO sample_file_type (sample_file_type_id, type) VALUES (1, 'Reads')`,
	`INSERT INTO sample_file (sample_file_id, sample_id, file, sample_file_type_id) VALUES (100, 10, '/iplant/home/alice/s1.fasta', 1)`,
}

func openFixtureRepo(t *testing.T) *SQLRepository {
	t.Helper()
	ctx := context.Background()
	repo, err := OpenSQL(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	for _, stmt := range fixtureStatements {
		_, err := repo.db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	return repo
}

func TestSQLRepositoryGetProject(t *testing.T) {
	ctx := context.Background()
	repo := openFixtureRepo(t)

	p, err := repo.GetProject(ctx, "1")
	require.NoError(t, err)

	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "OCEAN", p.Code)
	assert.Equal(t, "Ocean survey", p.Name)
	assert.Equal(t, "Example Lab", p.Institution)
	assert.Equal(t, "alice", p.Owner)
	assert.True(t, p.Private)
	assert.Equal(t, PublicationPending, p.PublicationStatus)

	require.Len(t, p.Publications, 2)
	assert.Equal(t, "12345", p.Publications[0].PubmedID)
	assert.Empty(t, p.Publications[1].PubmedID)

	require.Len(t, p.Samples, 1)
	s := p.Samples[0]
	assert.Equal(t, "10", s.ID)
	assert.Equal(t, "station 4", s.Name)
	taxon, ok := s.Attr("TAXON_ID")
	assert.True(t, ok)
	assert.Equal(t, "408172", taxon)
	require.Len(t, s.Files, 1)
	assert.Equal(t, "/iplant/home/alice/s1.fasta", s.Files[0].Path)
	assert.Equal(t, "Reads", s.Files[0].Type)
}

func TestSQLRepositoryGetProjectNotFound(t *testing.T) {
	repo := openFixtureRepo(t)
	_, err := repo.GetProject(context.Background(), "999")
	require.Error(t, err)
	assert.True(t, job.IsNotFound(err))
}

func TestSQLRepositoryEligibleAndUpdates(t *testing.T) {
	ctx := context.Background()
	repo := openFixtureRepo(t)

	eligible, err := repo.ListEligibleProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []EligibleProject{{ID: "1", Owner: "alice"}}, eligible)

	require.NoError(t, repo.SetPublicationStatus(ctx, "1", PublicationInProgress))
	eligible, err = repo.ListEligibleProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	require.NoError(t, repo.UpdateProjectVisibility(ctx, "1", Visibility{Private: false, Accession: "ERP000001"}))
	p, err := repo.GetProject(ctx, "1")
	require.NoError(t, err)
	assert.False(t, p.Private)
	assert.Equal(t, "ERP000001", p.Accession)
	assert.Equal(t, PublicationInProgress, p.PublicationStatus)

	err = repo.UpdateProjectVisibility(ctx, "999", Visibility{})
	assert.True(t, job.IsNotFound(err))
}

func TestOpenSQLUnsupportedDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", "x")
	require.Error(t, err)
	assert.True(t, job.IsConfiguration(err))
}
