package pipeline

import (
	"crypto/md5" // #nosec G501 -- MD5 is the checksum the archive requires, not a security control
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/fetch"
	"github.com/3leaps/seqsubmit/pkg/job"
	"github.com/3leaps/seqsubmit/pkg/project"
)

// ResolveFiles returns descriptors for every recognized sequence file across
// all samples, in sample order. When include is non-empty a file must also
// match one of its doublestar patterns, tested against the full path and the
// base name.
func ResolveFiles(p *project.Project, include []string) ([]job.FileDescriptor, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, job.NewError(StageStageInputs, job.ErrConfiguration, fmt.Errorf("invalid include pattern %q", pattern))
		}
	}

	var out []job.FileDescriptor
	for _, s := range p.Samples {
		for _, f := range s.Files {
			if f.Path == "" || !convert.IsSequenceFile(f.Path) {
				continue
			}
			if !included(f.Path, include) {
				continue
			}
			out = append(out, job.FileDescriptor{SampleID: s.ID, SourcePath: f.Path})
		}
	}
	return out, nil
}

func included(p string, include []string) bool {
	if len(include) == 0 {
		return true
	}
	trimmed := strings.TrimPrefix(p, "/")
	base := path.Base(p)
	for _, pattern := range include {
		pattern = strings.TrimPrefix(pattern, "/")
		if ok, _ := doublestar.Match(pattern, trimmed); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// LocalPath maps a remote sample file path into stagingDir, after removing
// stripPrefix. The result never escapes stagingDir.
func LocalPath(stagingDir, remotePath, stripPrefix string) string {
	rel := fetch.StripPrefix(remotePath, stripPrefix)
	rel = path.Clean("/" + rel)
	return filepath.Join(stagingDir, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// AssignRemoteNames gives every file a unique deposit-area name. The base
// name of the converted file is used unless another file in the job already
// took it, in which case the sample id is prepended.
func AssignRemoteNames(files []job.FileDescriptor) {
	taken := make(map[string]bool, len(files))
	for i := range files {
		src := files[i].ConvertedPath
		if src == "" {
			src = files[i].LocalPath
		}
		name := filepath.Base(src)
		if taken[name] {
			name = files[i].SampleID + "_" + filepath.Base(src)
			for n := 2; taken[name]; n++ {
				name = files[i].SampleID + "_" + strconv.Itoa(n) + "_" + filepath.Base(src)
			}
		}
		taken[name] = true
		files[i].RemoteName = name
	}
}

// Checksum returns the hex MD5 of the file at p.
func Checksum(p string) (string, error) {
	f, err := os.Open(p) // #nosec G304 -- staged file under the job staging dir
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() // #nosec G401 -- archive-mandated checksum
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
