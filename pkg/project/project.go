// Package project exposes the read model of projects, samples and files that
// jobs submit, and the write operations that record submission results.
package project

import (
	"context"
	"strings"
)

// PublicationStatus tracks a project's progress toward the archive.
type PublicationStatus int

const (
	PublicationNone       PublicationStatus = 0
	PublicationPending    PublicationStatus = 1
	PublicationInProgress PublicationStatus = 2
	PublicationPublished  PublicationStatus = 3
)

// Project is the submission-relevant view of a project.
type Project struct {
	ID           string        `yaml:"id"`
	Code         string        `yaml:"code,omitempty"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description,omitempty"`
	Institution  string        `yaml:"institution,omitempty"`
	Owner        string        `yaml:"owner,omitempty"`
	Private      bool          `yaml:"private"`
	Accession    string        `yaml:"accession,omitempty"`
	Publications []Publication `yaml:"publications,omitempty"`
	Samples      []Sample      `yaml:"samples,omitempty"`

	PublicationStatus PublicationStatus `yaml:"publication_status,omitempty"`
}

// Publication is a paper linked to a project.
type Publication struct {
	ID       string `yaml:"id,omitempty"`
	Title    string `yaml:"title,omitempty"`
	PubmedID string `yaml:"pubmed_id,omitempty"`
}

// Sample is one biological sample with its attributes and sequence files.
type Sample struct {
	ID         string      `yaml:"id"`
	Accession  string      `yaml:"accession,omitempty"`
	Name       string      `yaml:"name"`
	Attributes []Attribute `yaml:"attributes,omitempty"`
	Files      []File      `yaml:"files,omitempty"`
}

// Attribute is one typed key/value on a sample (e.g. taxon_id).
type Attribute struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// File is a sample file stored in the remote file store.
type File struct {
	ID   string `yaml:"id,omitempty"`
	Path string `yaml:"path"`
	Type string `yaml:"type,omitempty"`
}

// Visibility is the write model applied when a submission completes.
type Visibility struct {
	Private   bool
	Accession string
}

// EligibleProject is a project ready for submission.
type EligibleProject struct {
	ID    string
	Owner string
}

// Repository is the project store consumed by the job pipeline.
type Repository interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	UpdateProjectVisibility(ctx context.Context, projectID string, v Visibility) error
	ListEligibleProjects(ctx context.Context) ([]EligibleProject, error)
}

// PublicationTracker is implemented by repositories that record submission
// progress on the project itself.
type PublicationTracker interface {
	SetPublicationStatus(ctx context.Context, projectID string, status PublicationStatus) error
}

// Attr returns the value of the attribute whose type matches name
// case-insensitively.
func (s Sample) Attr(name string) (string, bool) {
	for _, a := range s.Attributes {
		if strings.EqualFold(a.Type, name) {
			return a.Value, true
		}
	}
	return "", false
}

// AttributeMap returns the sample attributes keyed by lower-cased type.
// Later duplicates win.
func (s Sample) AttributeMap() map[string]string {
	out := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		out[strings.ToLower(a.Type)] = a.Value
	}
	return out
}

// Label returns the sample name, falling back to its id.
func (s Sample) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
