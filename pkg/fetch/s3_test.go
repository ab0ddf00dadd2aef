package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     S3Config
		wantErr string
	}{
		{name: "bucket only", cfg: S3Config{Bucket: "samples"}},
		{name: "static keys", cfg: S3Config{Bucket: "samples", AccessKeyID: "AK", SecretAccessKey: "SK"}},
		{name: "missing bucket", cfg: S3Config{}, wantErr: "bucket is required"},
		{name: "half a key pair", cfg: S3Config{Bucket: "samples", AccessKeyID: "AK"}, wantErr: "must be provided together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveRegion(t *testing.T) {
	assert.Equal(t, "eu-west-1", resolveRegion("", "eu-west-1"))
	assert.Equal(t, DefaultAWSRegion, resolveRegion("", ""))
	assert.Equal(t, "", resolveRegion("http://localhost:9000", ""))
}

func TestS3Fetcher_Key(t *testing.T) {
	f, err := NewS3(context.Background(), S3Config{
		Bucket:          "samples",
		Prefix:          "media/",
		StripPrefix:     DefaultStripPrefix,
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "AK",
		SecretAccessKey: "SK",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "media/alice/s1.fasta", f.Key("/iplant/home/alice/s1.fasta"))
	assert.Equal(t, "media/data/s2.fq", f.Key("/data/s2.fq"))

	f.cfg.Prefix = ""
	assert.Equal(t, "alice/s1.fasta", f.Key("/iplant/home/alice/s1.fasta"))
}
