package archive

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// UnknownError is reported when a rejected receipt carries no messages.
const UnknownError = "Unknown error"

// Receipt is the archive's response to a post.
type Receipt struct {
	XMLName     xml.Name        `xml:"RECEIPT"`
	Success     string          `xml:"success,attr"`
	ReceiptDate string          `xml:"receiptDate,attr"`
	Projects    []ReceiptObject `xml:"PROJECT"`
	Submissions []ReceiptObject `xml:"SUBMISSION"`
	Samples     []ReceiptObject `xml:"SAMPLE"`
	Experiments []ReceiptObject `xml:"EXPERIMENT"`
	Runs        []ReceiptObject `xml:"RUN"`
	Errors      []string        `xml:"MESSAGES>ERROR"`
	Infos       []string        `xml:"MESSAGES>INFO"`
}

// ReceiptObject is one object acknowledged in a receipt.
type ReceiptObject struct {
	Accession string `xml:"accession,attr"`
	Alias     string `xml:"alias,attr"`
	Status    string `xml:"status,attr"`
}

// ParseReceipt decodes a receipt body.
func ParseReceipt(body []byte) (*Receipt, error) {
	var r Receipt
	if err := xml.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	return &r, nil
}

// Accepted reports whether the archive accepted the post. Only
// success="true" counts; a receipt without the attribute is a rejection.
func (r *Receipt) Accepted() bool {
	return strings.EqualFold(strings.TrimSpace(r.Success), "true")
}

// ErrorMessages returns the receipt's error messages verbatim, in order, or
// UnknownError when a rejection carries none.
func (r *Receipt) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, m := range r.Errors {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 && !r.Accepted() {
		return []string{UnknownError}
	}
	return out
}

// ProjectAccession returns the first project accession in the receipt.
func (r *Receipt) ProjectAccession() string {
	return firstAccession(r.Projects)
}

// SubmissionAccession returns the first submission accession in the receipt.
func (r *Receipt) SubmissionAccession() string {
	return firstAccession(r.Submissions)
}

// SampleAccessions maps sample alias to assigned accession.
func (r *Receipt) SampleAccessions() map[string]string {
	out := make(map[string]string, len(r.Samples))
	for _, s := range r.Samples {
		if s.Alias != "" && s.Accession != "" {
			out[s.Alias] = s.Accession
		}
	}
	return out
}

func firstAccession(objs []ReceiptObject) string {
	for _, o := range objs {
		if o.Accession != "" {
			return o.Accession
		}
	}
	return ""
}
