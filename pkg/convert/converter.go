package convert

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// DefaultQuality is the Phred+33 quality character assigned to every base
// when FASTA records are rewritten as FASTQ.
const DefaultQuality = 'I'

// Converter turns one local file into the canonical format and returns the
// path of the converted file.
type Converter interface {
	Convert(ctx context.Context, inputPath string) (string, error)
}

// Builtin converts FASTA (optionally gzip or bzip2 compressed) to
// gzip-compressed FASTQ in process.
type Builtin struct {
	// Quality is the quality character written for each base. Zero means DefaultQuality.
	Quality byte

	Logger *zap.Logger
}

var _ Converter = (*Builtin)(nil)

// Convert implements Converter.
func (b *Builtin) Convert(ctx context.Context, inputPath string) (string, error) {
	output, needed, err := Plan(inputPath)
	if err != nil {
		return "", err
	}
	if !needed {
		return output, nil
	}

	in, err := openDecompressed(inputPath)
	if err != nil {
		return "", job.NewError("convert", job.ErrStaging, err)
	}
	defer func() { _ = in.Close() }()

	q := b.Quality
	if q == 0 {
		q = DefaultQuality
	}

	err = writeGzipAtomic(output, func(w io.Writer) error {
		return FastaToFastq(ctx, in, w, q)
	})
	if err != nil {
		return "", job.NewError("convert", job.ErrConversion, err)
	}

	if b.Logger != nil {
		b.Logger.Debug("Converted file",
			zap.String("input", inputPath),
			zap.String("output", output))
	}
	return output, nil
}

// FastaToFastq rewrites FASTA records from r as FASTQ records on w. Multi-line
// sequences are joined and every base gets quality q.
func FastaToFastq(ctx context.Context, r io.Reader, w io.Writer, q byte) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	bw := bufio.NewWriter(w)

	var header string
	var seq []byte
	records := 0

	flush := func() error {
		if header == "" {
			return nil
		}
		qual := make([]byte, len(seq))
		for i := range qual {
			qual[i] = q
		}
		if _, err := fmt.Fprintf(bw, "@%s\n%s\n+\n%s\n", header, seq, qual); err != nil {
			return err
		}
		records++
		seq = seq[:0]
		return nil
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 || line[0] == ';' {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return err
			}
			if records%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			header = string(line[1:])
			if header == "" {
				header = fmt.Sprintf("seq%d", records+1)
			}
			continue
		}
		if header == "" {
			return fmt.Errorf("sequence data before first fasta header")
		}
		seq = append(seq, line...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read fasta: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}
	if records == 0 {
		return fmt.Errorf("no fasta records found")
	}
	return bw.Flush()
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openDecompressed opens path and transparently decompresses it according to
// its suffix.
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a staged file under the job's staging dir
	if err != nil {
		return nil, err
	}

	switch Inspect(path).Compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []io.Closer{f, gz}}, nil
	case CompressionBzip2:
		return &readCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}

// writeGzipAtomic writes gzip-compressed output produced by fill to path via
// a temp file, so path only ever holds complete output.
func writeGzipAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".part.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	gz := gzip.NewWriter(tmp)
	if err := fill(gz); err != nil {
		_ = gz.Close()
		_ = tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("finish gzip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
