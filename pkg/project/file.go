package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// FileRepository serves projects from a YAML document. Writes are applied
// in memory and flushed back to the file atomically.
//
// Document shape:
//
//	projects:
//	  - id: "P1"
//	    name: Ocean survey
//	    institution: Example Lab
//	    publication_status: 1
//	    samples:
//	      - id: "S1"
//	        name: station 4
//	        attributes:
//	          - {type: taxon_id, value: "408172"}
//	        files:
//	          - path: /iplant/home/alice/s1.fasta
type FileRepository struct {
	path string

	mu       sync.Mutex
	projects map[string]*Project
	order    []string
}

type fileDocument struct {
	Projects []Project `yaml:"projects"`
}

// LoadFile reads a project document from path.
func LoadFile(path string) (*FileRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, job.NewError("load projects", job.ErrConfiguration, fmt.Errorf("projects file is required"))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, job.NewError("load projects", job.ErrStorage, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, job.NewError("load projects", job.ErrStorage, fmt.Errorf("parse %s: %w", path, err))
	}

	r := &FileRepository{path: path, projects: make(map[string]*Project, len(doc.Projects))}
	for i := range doc.Projects {
		p := doc.Projects[i]
		if p.ID == "" {
			return nil, job.NewError("load projects", job.ErrStorage, fmt.Errorf("project at index %d has no id", i))
		}
		if _, dup := r.projects[p.ID]; dup {
			return nil, job.NewError("load projects", job.ErrStorage, fmt.Errorf("duplicate project id %q", p.ID))
		}
		r.projects[p.ID] = &p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// GetProject returns a copy of the stored project.
func (r *FileRepository) GetProject(_ context.Context, projectID string) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return nil, job.NewError("get project", job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	return cloneProject(p), nil
}

// UpdateProjectVisibility records the accession and visibility and flushes the file.
func (r *FileRepository) UpdateProjectVisibility(_ context.Context, projectID string, v Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return job.NewError("update project visibility", job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	p.Private = v.Private
	p.Accession = v.Accession
	return r.flushLocked()
}

// SetPublicationStatus records submission progress and flushes the file.
func (r *FileRepository) SetPublicationStatus(_ context.Context, projectID string, status PublicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return job.NewError("set publication status", job.ErrNotFound, fmt.Errorf("project %s", projectID))
	}
	p.PublicationStatus = status
	return r.flushLocked()
}

// ListEligibleProjects returns projects whose publication status is pending.
func (r *FileRepository) ListEligibleProjects(_ context.Context) ([]EligibleProject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []EligibleProject
	for _, id := range r.order {
		p := r.projects[id]
		if p.PublicationStatus == PublicationPending {
			out = append(out, EligibleProject{ID: p.ID, Owner: p.Owner})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FileRepository) flushLocked() error {
	doc := fileDocument{Projects: make([]Project, 0, len(r.order))}
	for _, id := range r.order {
		doc.Projects = append(doc.Projects, *r.projects[id])
	}
	b, err := yaml.Marshal(&doc)
	if err != nil {
		return job.NewError("write projects", job.ErrStorage, err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp.*")
	if err != nil {
		return job.NewError("write projects", job.ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return job.NewError("write projects", job.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return job.NewError("write projects", job.ErrStorage, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return job.NewError("write projects", job.ErrStorage, err)
	}
	return nil
}

func cloneProject(p *Project) *Project {
	c := *p
	c.Publications = append([]Publication(nil), p.Publications...)
	c.Samples = make([]Sample, len(p.Samples))
	for i, s := range p.Samples {
		s.Attributes = append([]Attribute(nil), s.Attributes...)
		s.Files = append([]File(nil), s.Files...)
		c.Samples[i] = s
	}
	return &c
}
