// Package pipelinetest provides in-memory collaborators for exercising the
// submission pipeline without a network.
package pipelinetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/3leaps/seqsubmit/pkg/archive"
	"github.com/3leaps/seqsubmit/pkg/deposit"
	"github.com/3leaps/seqsubmit/pkg/fetch"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/project"
)

// Projects is an in-memory project.Repository and project.PublicationTracker.
type Projects struct {
	mu       sync.Mutex
	projects map[string]*project.Project

	// Visibility records every UpdateProjectVisibility call by project id.
	Visibility map[string]project.Visibility

	// Statuses records every publication status set, in order, by project id.
	Statuses map[string][]project.PublicationStatus
}

var (
	_ project.Repository         = (*Projects)(nil)
	_ project.PublicationTracker = (*Projects)(nil)
)

// NewProjects returns a repository holding ps.
func NewProjects(ps ...*project.Project) *Projects {
	r := &Projects{
		projects:   make(map[string]*project.Project),
		Visibility: make(map[string]project.Visibility),
		Statuses:   make(map[string][]project.PublicationStatus),
	}
	for _, p := range ps {
		r.Put(p)
	}
	return r
}

// Put adds or replaces a project.
func (r *Projects) Put(p *project.Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
}

// Get returns a copy of the stored project.
func (r *Projects) Get(id string) (project.Project, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return project.Project{}, false
	}
	return *p, true
}

func (r *Projects) GetProject(_ context.Context, id string) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, job.NewError("get project", job.ErrNotFound, fmt.Errorf("project %s", id))
	}
	cp := *p
	return &cp, nil
}

func (r *Projects) UpdateProjectVisibility(_ context.Context, id string, v project.Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return job.NewError("update project visibility", job.ErrNotFound, fmt.Errorf("project %s", id))
	}
	p.Private = v.Private
	p.Accession = v.Accession
	r.Visibility[id] = v
	return nil
}

func (r *Projects) ListEligibleProjects(context.Context) ([]project.EligibleProject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []project.EligibleProject
	for _, p := range r.projects {
		if p.PublicationStatus == project.PublicationPending {
			out = append(out, project.EligibleProject{ID: p.ID, Owner: p.Owner})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Projects) SetPublicationStatus(_ context.Context, id string, s project.PublicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return job.NewError("set publication status", job.ErrNotFound, fmt.Errorf("project %s", id))
	}
	p.PublicationStatus = s
	r.Statuses[id] = append(r.Statuses[id], s)
	return nil
}

// Fetcher serves file contents from memory.
type Fetcher struct {
	mu     sync.Mutex
	Files  map[string]string
	Errors map[string]error

	// Block, when set, is received from before every fetch.
	Block chan struct{}

	// OnFetch, when set, is called with the remote path as each fetch starts.
	OnFetch func(remotePath string)

	calls []string
}

var _ fetch.Fetcher = (*Fetcher)(nil)

// NewFetcher returns a Fetcher serving files keyed by remote path.
func NewFetcher(files map[string]string) *Fetcher {
	return &Fetcher{Files: files, Errors: map[string]error{}}
}

func (f *Fetcher) Fetch(ctx context.Context, remotePath, localPath string, _ fetch.Credential) error {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.OnFetch != nil {
		f.OnFetch(remotePath)
	}

	f.mu.Lock()
	f.calls = append(f.calls, remotePath)
	err := f.Errors[remotePath]
	data, ok := f.Files[remotePath]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return &fetch.Error{Op: "Get", Source: "fake", Path: remotePath, Status: 404, Err: fetch.ErrNotFound}
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte(data), 0o644)
}

// Calls returns the remote paths requested so far.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Deposit records uploads in memory.
type Deposit struct {
	mu         sync.Mutex
	ConnectErr error
	UploadErr  error
	uploads    map[string][]byte
	connects   int
	closes     int
}

var _ deposit.Dialer = (*Deposit)(nil)

// NewDeposit returns an empty Deposit.
func NewDeposit() *Deposit {
	return &Deposit{uploads: map[string][]byte{}}
}

func (d *Deposit) Connect(context.Context, string, string, string) (deposit.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	d.connects++
	return &depositSession{d: d}, nil
}

// Uploads returns a copy of uploaded contents keyed by remote name.
func (d *Deposit) Uploads() map[string][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string][]byte, len(d.uploads))
	for k, v := range d.uploads {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Sessions returns how many sessions were opened and closed.
func (d *Deposit) Sessions() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects, d.closes
}

type depositSession struct {
	d *Deposit
}

func (s *depositSession) Upload(_ context.Context, localPath, remoteName string) error {
	if s.d.UploadErr != nil {
		return s.d.UploadErr
	}
	data, err := os.ReadFile(localPath) // #nosec G304 -- test helper
	if err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.uploads[remoteName] = data
	return nil
}

func (s *depositSession) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.closes++
	return nil
}

// Archive accepts every submission and assigns fixed accessions.
type Archive struct {
	mu sync.Mutex

	ProjectAccession    string
	SubmissionAccession string

	// Reject, when set, makes Submit return a rejection with these messages.
	Reject []string

	Submissions []archive.Documents
	Releases    []string
}

var _ archive.Submitter = (*Archive)(nil)

// NewArchive returns an Archive assigning projectAccession.
func NewArchive(projectAccession string) *Archive {
	return &Archive{ProjectAccession: projectAccession, SubmissionAccession: "ERA000001"}
}

func (a *Archive) Submit(_ context.Context, docs archive.Documents) (*archive.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Submissions = append(a.Submissions, docs)

	if len(a.Reject) > 0 {
		r := &archive.Receipt{Success: "false", Errors: a.Reject}
		return r, job.Rejected("submit", r.ErrorMessages())
	}

	r := &archive.Receipt{Success: "true"}
	if docs.Project != nil {
		r.Projects = []archive.ReceiptObject{{Accession: a.ProjectAccession, Alias: docs.Project.Projects[0].Alias}}
		r.Submissions = []archive.ReceiptObject{{Accession: a.SubmissionAccession}}
	}
	if docs.Sample != nil {
		for i, s := range docs.Sample.Samples {
			r.Samples = append(r.Samples, archive.ReceiptObject{Alias: s.Alias, Accession: fmt.Sprintf("ERS%06d", i+1)})
		}
	}
	return r, nil
}

func (a *Archive) Release(_ context.Context, accession string) (*archive.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Releases = append(a.Releases, accession)
	return &archive.Receipt{Success: "true"}, nil
}

// Posts returns how many Submit calls were made.
func (a *Archive) Posts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Submissions)
}

// ReleasedAccessions returns the accessions released so far.
func (a *Archive) ReleasedAccessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Releases...)
}

// SampleProject returns a submittable project with one sample and the given
// file paths.
func SampleProject(id string, paths ...string) *project.Project {
	files := make([]project.File, len(paths))
	for i, p := range paths {
		files[i] = project.File{ID: fmt.Sprintf("F%d", i+1), Path: p}
	}
	return &project.Project{
		ID:                id,
		Name:              "Project " + id,
		Description:       "Test project",
		Institution:       "University of Arizona",
		Owner:             "alice",
		Private:           true,
		PublicationStatus: project.PublicationPending,
		Samples: []project.Sample{{
			ID:   id + "-S1",
			Name: "sample 1",
			Attributes: []project.Attribute{
				{Type: "taxon_id", Value: "408172"},
				{Type: "library_strategy", Value: "WGS"},
				{Type: "library_source", Value: "METAGENOMIC"},
				{Type: "library_selection", Value: "RANDOM"},
				{Type: "library_layout", Value: "SINGLE"},
				{Type: "platform_type", Value: "ILLUMINA"},
				{Type: "platform_model", Value: "Illumina HiSeq 2000"},
			},
			Files: files,
		}},
	}
}
