package archive

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/project"
)

// RequiredSampleAttributes must be present, case-insensitively, on every
// submitted sample.
var RequiredSampleAttributes = []string{
	"taxon_id",
	"library_strategy",
	"library_source",
	"library_selection",
	"library_layout",
	"platform_type",
	"platform_model",
}

// Layout and platform values become element names.
var elementName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Builder produces the metadata documents for one job. It performs no I/O.
type Builder struct {
	// JobID suffixes every alias so retried jobs never collide.
	JobID string

	// CenterName overrides the project institution as the submitting center.
	CenterName string
}

// Validate checks every project and sample field the documents need. It is
// called before anything is posted.
func (b Builder) Validate(p *project.Project) error {
	if strings.TrimSpace(p.Institution) == "" {
		return b.missing(fmt.Errorf("project %s: missing institution", p.ID))
	}
	for _, s := range p.Samples {
		attrs := s.AttributeMap()
		for _, name := range RequiredSampleAttributes {
			if strings.TrimSpace(attrs[name]) == "" {
				return b.missing(fmt.Errorf("sample %q: missing %s attribute", s.Label(), name))
			}
		}
		for _, name := range []string{"library_layout", "platform_type"} {
			if v := strings.ToUpper(strings.TrimSpace(attrs[name])); !elementName.MatchString(v) {
				return b.missing(fmt.Errorf("sample %q: invalid %s %q", s.Label(), name, attrs[name]))
			}
		}
	}
	return nil
}

func (b Builder) missing(err error) error {
	e := job.NewError("build", job.ErrMissingRequiredAttribute, err)
	e.JobID = b.JobID
	return e
}

// Submission returns the envelope that adds the accompanying documents.
func (b Builder) Submission(p *project.Project) SubmissionEnvelope {
	center := b.CenterName
	if center == "" {
		center = p.Institution
	}
	return SubmissionEnvelope{
		CenterName: center,
		Actions:    []Action{{Add: &Empty{}}},
	}
}

// Release returns the envelope that makes accession public.
func (b Builder) Release(accession string) SubmissionEnvelope {
	return SubmissionEnvelope{
		Actions: []Action{{Release: &ReleaseAction{Target: accession}}},
	}
}

// ProjectAlias returns the alias used for p.
func (b Builder) ProjectAlias(p *project.Project) string {
	code := p.Code
	if code == "" {
		code = p.ID
	}
	return "project_" + code + "_" + b.JobID
}

// Project returns the project document.
func (b Builder) Project(p *project.Project) (ProjectSet, error) {
	if strings.TrimSpace(p.Institution) == "" {
		return ProjectSet{}, b.missing(fmt.Errorf("project %s: missing institution", p.ID))
	}

	desc := ProjectDescriptor{
		Alias:       b.ProjectAlias(p),
		Title:       p.Name,
		Description: p.Description,
	}
	for _, pub := range p.Publications {
		if pub.PubmedID == "" {
			continue
		}
		desc.Links = append(desc.Links, ProjectLink{XRef: XRefLink{DB: "PUBMED", ID: pub.PubmedID}})
	}
	return ProjectSet{Projects: []ProjectDescriptor{desc}}, nil
}

// SampleAlias returns the alias used for s.
func (b Builder) SampleAlias(s project.Sample) string {
	id := s.Accession
	if id == "" {
		id = s.ID
	}
	return "sample_" + id + "_" + b.JobID
}

// Samples returns the sample document.
func (b Builder) Samples(p *project.Project) (SampleSet, error) {
	set := SampleSet{Samples: make([]SampleDescriptor, 0, len(p.Samples))}
	for _, s := range p.Samples {
		taxon, _ := s.Attr("taxon_id")
		if strings.TrimSpace(taxon) == "" {
			return SampleSet{}, b.missing(fmt.Errorf("sample %q: missing taxon_id attribute", s.Label()))
		}
		desc := SampleDescriptor{
			Alias:      b.SampleAlias(s),
			Title:      s.Name,
			SampleName: SampleName{TaxonID: taxon},
		}
		for _, a := range s.Attributes {
			desc.Attributes = append(desc.Attributes, SampleAttribute{Tag: a.Type, Value: a.Value})
		}
		set.Samples = append(set.Samples, desc)
	}
	return set, nil
}

// ExperimentAlias returns the alias used for the experiment of s.
func (b Builder) ExperimentAlias(s project.Sample) string {
	return "experiment_" + s.ID + "_" + b.JobID
}

// ExperimentsAndRuns returns one experiment per sample with staged files and
// one run per file. sampleAccessions maps sample alias to the accession
// assigned by the first receipt.
func (b Builder) ExperimentsAndRuns(p *project.Project, projectAccession string, sampleAccessions map[string]string, files []job.FileDescriptor) (ExperimentSet, RunSet, error) {
	if err := b.Validate(p); err != nil {
		return ExperimentSet{}, RunSet{}, err
	}

	bySample := make(map[string][]job.FileDescriptor)
	for _, f := range files {
		bySample[f.SampleID] = append(bySample[f.SampleID], f)
	}

	var experiments ExperimentSet
	var runs RunSet
	for _, s := range p.Samples {
		sampleFiles := bySample[s.ID]
		if len(sampleFiles) == 0 {
			continue
		}

		alias := b.SampleAlias(s)
		accession, ok := sampleAccessions[alias]
		if !ok {
			e := job.NewError("build", job.ErrSubmissionRejected, fmt.Errorf("receipt has no accession for %s", alias))
			e.JobID = b.JobID
			return ExperimentSet{}, RunSet{}, e
		}

		attrs := s.AttributeMap()
		expAlias := b.ExperimentAlias(s)
		experiments.Experiments = append(experiments.Experiments, ExperimentDescriptor{
			Alias:    expAlias,
			StudyRef: Ref{Accession: projectAccession},
			Design: Design{
				SampleDescriptor: Ref{Accession: accession},
				Library: LibraryDescriptor{
					Strategy:  strings.ToUpper(attrs["library_strategy"]),
					Source:    strings.ToUpper(attrs["library_source"]),
					Selection: attrs["library_selection"],
					Layout:    Layout{Kind: strings.ToUpper(strings.TrimSpace(attrs["library_layout"]))},
				},
			},
			Platform: Platform{
				Type:            strings.ToUpper(strings.TrimSpace(attrs["platform_type"])),
				InstrumentModel: attrs["platform_model"],
			},
		})

		for i, f := range sampleFiles {
			runs.Runs = append(runs.Runs, RunDescriptor{
				Alias:         "run_" + s.ID + "_" + strconv.Itoa(i) + "_" + b.JobID,
				ExperimentRef: Ref{RefName: expAlias},
				Files: []RunFile{{
					Filename:       RemoteName(f),
					FileType:       "fastq",
					ChecksumMethod: "MD5",
					Checksum:       f.Checksum,
				}},
			})
		}
	}
	return experiments, runs, nil
}

// RemoteName returns the deposit-area name of f.
func RemoteName(f job.FileDescriptor) string {
	if f.RemoteName != "" {
		return f.RemoteName
	}
	path := f.ConvertedPath
	if path == "" {
		path = f.LocalPath
	}
	return filepath.Base(path)
}
