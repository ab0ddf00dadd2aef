package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{name: "strips home prefix", path: "/iplant/home/alice/reads.fastq", prefix: "/iplant/home", want: "/alice/reads.fastq"},
		{name: "trailing slash on prefix", path: "/iplant/home/alice/r.fq", prefix: "/iplant/home/", want: "/alice/r.fq"},
		{name: "unrelated path kept", path: "/data/alice/r.fq", prefix: "/iplant/home", want: "/data/alice/r.fq"},
		{name: "partial segment kept", path: "/iplant/homework/r.fq", prefix: "/iplant/home", want: "/iplant/homework/r.fq"},
		{name: "slash disables", path: "/iplant/home/a", prefix: "/", want: "/iplant/home/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripPrefix(tt.path, tt.prefix))
		})
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("@r1\nACGT\n+\nIIII\n"))
	}))
	defer srv.Close()

	f, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "job-1", "alice", "reads.fastq")
	err = f.Fetch(context.Background(), "/iplant/home/alice/reads.fastq", local, Credential{Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "/files/v2/media/alice/reads.fastq", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nACGT\n+\nIIII\n", string(data))
}

func TestHTTPFetcher_EscapesPathSegments(t *testing.T) {
	var gotPath, gotEscaped, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEscaped = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(">r1\nACGT\n"))
	}))
	defer srv.Close()

	f, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "reads.fasta")
	err = f.Fetch(context.Background(), "/iplant/home/alice/run #1/50% done?.fasta", local, Credential{})
	require.NoError(t, err)

	assert.Equal(t, "/files/v2/media/alice/run #1/50% done?.fasta", gotPath)
	assert.Equal(t, "/files/v2/media/alice/run%20%231/50%25%20done%3F.fasta", gotEscaped)
	assert.Empty(t, gotQuery)
}

func TestHTTPFetcher_FetchStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{name: "not found", status: http.StatusNotFound, check: IsNotFound},
		{name: "forbidden", status: http.StatusForbidden, check: IsAccessDenied},
		{name: "throttled", status: http.StatusTooManyRequests, check: IsThrottled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			f, err := NewHTTP(HTTPConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			local := filepath.Join(t.TempDir(), "out.fq")
			err = f.Fetch(context.Background(), "/a/b.fq", local, Credential{})
			require.Error(t, err)
			assert.True(t, tt.check(err))

			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.status, fe.Status)

			_, statErr := os.Stat(local)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestHTTPFetcher_JSONErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"error","message":"File/folder does not exist"}`))
	}))
	defer srv.Close()

	f, err := NewHTTP(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = f.Fetch(context.Background(), "/x.fq", filepath.Join(t.TempDir(), "x.fq"), Credential{Token: "Basic abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File/folder does not exist")
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{})
	require.Error(t, err)
}

func TestAuthorization(t *testing.T) {
	assert.Equal(t, "", authorization(""))
	assert.Equal(t, "Bearer abc", authorization("abc"))
	assert.Equal(t, "Basic abc", authorization("Basic abc"))
}
