// Package convert brings staged sequence files into the canonical
// gzip-compressed FASTQ format accepted by the archive.
package convert

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// Format is the sequence format of a file, after compression suffixes are removed.
type Format string

// Recognized formats.
const (
	FormatUnknown Format = ""
	FormatFASTA   Format = "fasta"
	FormatFASTQ   Format = "fastq"
)

// Compression is the compression suffix carried by a file name.
type Compression string

// Recognized compression suffixes.
const (
	CompressionNone  Compression = ""
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
)

// CanonicalSuffix is appended to converted files.
const CanonicalSuffix = ".fastq.gz"

var compressionSuffixes = []struct {
	suffix string
	comp   Compression
}{
	{".gzip", CompressionGzip},
	{".gz", CompressionGzip},
	{".bzip2", CompressionBzip2},
	{".bz2", CompressionBzip2},
}

var formatSuffixes = map[string]Format{
	".fasta": FormatFASTA,
	".fa":    FormatFASTA,
	".fastq": FormatFASTQ,
	".fq":    FormatFASTQ,
}

// Info describes a file name in terms of format and compression.
type Info struct {
	Format      Format
	Compression Compression

	// CompressionSuffix is the literal suffix that was stripped, e.g. ".bz2".
	CompressionSuffix string

	// Stem is the path with compression and format suffixes removed.
	Stem string
}

// Inspect classifies path by its suffixes. Matching is case-insensitive.
func Inspect(path string) Info {
	info := Info{Stem: path}
	lower := strings.ToLower(path)

	for _, cs := range compressionSuffixes {
		if strings.HasSuffix(lower, cs.suffix) {
			info.Compression = cs.comp
			info.CompressionSuffix = cs.suffix
			lower = strings.TrimSuffix(lower, cs.suffix)
			info.Stem = info.Stem[:len(lower)]
			break
		}
	}

	ext := filepath.Ext(lower)
	if f, ok := formatSuffixes[ext]; ok {
		info.Format = f
		info.Stem = info.Stem[:len(lower)-len(ext)]
	} else {
		info.Stem = path
	}
	return info
}

// IsSequenceFile reports whether path names a FASTA or FASTQ file, compressed or not.
func IsSequenceFile(path string) bool {
	return Inspect(path).Format != FormatUnknown
}

// Plan returns the path a staged file is uploaded from. FASTA inputs map to
// <stem>.fastq.gz and need conversion. FASTQ inputs are uploaded as-is when
// plain, .gz or .bz2.
func Plan(path string) (output string, convert bool, err error) {
	info := Inspect(path)
	switch info.Format {
	case FormatFASTA:
		return info.Stem + CanonicalSuffix, true, nil
	case FormatFASTQ:
		switch info.CompressionSuffix {
		case "", ".gz", ".bz2":
			return path, false, nil
		}
		return "", false, job.NewError("convert", job.ErrUnsupportedFormat,
			fmt.Errorf("%s: fastq with %s compression", filepath.Base(path), info.CompressionSuffix))
	default:
		return "", false, job.NewError("convert", job.ErrUnsupportedFormat,
			fmt.Errorf("%s: not a fasta or fastq file", filepath.Base(path)))
	}
}
