// Package archive builds the metadata documents describing a submission and
// posts them to the sequence archive's drop-box.
package archive

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Empty renders as an element with no content, e.g. <ADD></ADD>.
type Empty struct{}

// SubmissionEnvelope is the SUBMISSION document that accompanies every post
// and names the actions the archive should take.
type SubmissionEnvelope struct {
	XMLName    xml.Name `xml:"SUBMISSION"`
	CenterName string   `xml:"center_name,attr,omitempty"`
	Actions    []Action `xml:"ACTIONS>ACTION"`
}

// Action is one submission action. Exactly one field is set.
type Action struct {
	Add     *Empty         `xml:"ADD,omitempty"`
	Release *ReleaseAction `xml:"RELEASE,omitempty"`
}

// ReleaseAction makes the target accession public.
type ReleaseAction struct {
	Target string `xml:"target,attr"`
}

// ProjectSet wraps project descriptors for posting.
type ProjectSet struct {
	XMLName  xml.Name            `xml:"PROJECT_SET"`
	Projects []ProjectDescriptor `xml:"PROJECT"`
}

// ProjectDescriptor describes the study being submitted.
type ProjectDescriptor struct {
	Alias             string            `xml:"alias,attr"`
	Title             string            `xml:"TITLE"`
	Description       string            `xml:"DESCRIPTION"`
	SubmissionProject SubmissionProject `xml:"SUBMISSION_PROJECT"`
	Links             []ProjectLink     `xml:"PROJECT_LINKS>PROJECT_LINK,omitempty"`
}

// SubmissionProject marks the project as a sequencing project.
type SubmissionProject struct {
	SequencingProject Empty `xml:"SEQUENCING_PROJECT"`
}

// ProjectLink cross-references an external database entry.
type ProjectLink struct {
	XRef XRefLink `xml:"XREF_LINK"`
}

// XRefLink names an entry in an external database.
type XRefLink struct {
	DB string `xml:"DB"`
	ID string `xml:"ID"`
}

// SampleSet wraps sample descriptors for posting.
type SampleSet struct {
	XMLName xml.Name           `xml:"SAMPLE_SET"`
	Samples []SampleDescriptor `xml:"SAMPLE"`
}

// SampleDescriptor describes one biological sample.
type SampleDescriptor struct {
	Alias      string            `xml:"alias,attr"`
	Title      string            `xml:"TITLE"`
	SampleName SampleName        `xml:"SAMPLE_NAME"`
	Attributes []SampleAttribute `xml:"SAMPLE_ATTRIBUTES>SAMPLE_ATTRIBUTE,omitempty"`
}

// SampleName carries the sample's taxonomy.
type SampleName struct {
	TaxonID string `xml:"TAXON_ID"`
}

// SampleAttribute is one free-form tag/value pair.
type SampleAttribute struct {
	Tag   string `xml:"TAG"`
	Value string `xml:"VALUE"`
}

// ExperimentSet wraps experiment descriptors for posting.
type ExperimentSet struct {
	XMLName     xml.Name               `xml:"EXPERIMENT_SET"`
	Experiments []ExperimentDescriptor `xml:"EXPERIMENT"`
}

// ExperimentDescriptor describes how one sample was sequenced.
type ExperimentDescriptor struct {
	Alias    string   `xml:"alias,attr"`
	Title    string   `xml:"TITLE"`
	StudyRef Ref      `xml:"STUDY_REF"`
	Design   Design   `xml:"DESIGN"`
	Platform Platform `xml:"PLATFORM"`
}

// Ref points at another archive object by accession or alias.
type Ref struct {
	Accession string `xml:"accession,attr,omitempty"`
	RefName   string `xml:"refname,attr,omitempty"`
}

// Design is the experiment design block.
type Design struct {
	DesignDescription string            `xml:"DESIGN_DESCRIPTION"`
	SampleDescriptor  Ref               `xml:"SAMPLE_DESCRIPTOR"`
	Library           LibraryDescriptor `xml:"LIBRARY_DESCRIPTOR"`
}

// LibraryDescriptor describes the sequencing library.
type LibraryDescriptor struct {
	Strategy  string `xml:"LIBRARY_STRATEGY"`
	Source    string `xml:"LIBRARY_SOURCE"`
	Selection string `xml:"LIBRARY_SELECTION"`
	Layout    Layout `xml:"LIBRARY_LAYOUT"`
}

// Layout renders as an element named by its kind, e.g.
// <LIBRARY_LAYOUT><PAIRED></PAIRED></LIBRARY_LAYOUT>.
type Layout struct {
	Kind string
}

// MarshalXML implements xml.Marshaler.
func (l Layout) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if l.Kind != "" {
		if err := e.EncodeElement(Empty{}, xml.StartElement{Name: xml.Name{Local: l.Kind}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Platform renders as an element named by the platform type containing the
// instrument model, e.g. <PLATFORM><ILLUMINA><INSTRUMENT_MODEL>..</INSTRUMENT_MODEL></ILLUMINA></PLATFORM>.
type Platform struct {
	Type            string
	InstrumentModel string
}

// MarshalXML implements xml.Marshaler.
func (p Platform) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if p.Type != "" {
		inner := struct {
			InstrumentModel string `xml:"INSTRUMENT_MODEL"`
		}{p.InstrumentModel}
		if err := e.EncodeElement(inner, xml.StartElement{Name: xml.Name{Local: p.Type}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// RunSet wraps run descriptors for posting.
type RunSet struct {
	XMLName xml.Name        `xml:"RUN_SET"`
	Runs    []RunDescriptor `xml:"RUN"`
}

// RunDescriptor ties uploaded files to an experiment.
type RunDescriptor struct {
	Alias         string    `xml:"alias,attr"`
	ExperimentRef Ref       `xml:"EXPERIMENT_REF"`
	Files         []RunFile `xml:"DATA_BLOCK>FILES>FILE"`
}

// RunFile is one uploaded file with its checksum.
type RunFile struct {
	Filename       string `xml:"filename,attr"`
	FileType       string `xml:"filetype,attr"`
	ChecksumMethod string `xml:"checksum_method,attr"`
	Checksum       string `xml:"checksum,attr"`
}

// Encode renders doc as an XML document with a header.
func Encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode %T: %w", doc, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
