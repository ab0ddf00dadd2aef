// Package cloudtest runs S3 fetch tests against a local moto server.
//
// Tests using it carry the cloudintegration build tag:
//
//	func TestFetchFromBucket(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.SampleBucket(t, ctx, map[string]string{
//	        "alice/s1.fasta": ">r1\nACGT\n",
//	    })
//	    // ... fetch from bucket ...
//	}
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// moto accepts any static credentials.
const (
	AccessKeyID     = "testing"
	SecretAccessKey = "testing"
)

var (
	// Endpoint is overridden by MOTO_ENDPOINT.
	Endpoint = envOr("MOTO_ENDPOINT", "http://localhost:5555")

	// Region is overridden by MOTO_REGION.
	Region = envOr("MOTO_REGION", "us-east-1")

	clientOnce sync.Once
	client     *s3.Client
	clientErr  error
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Available reports whether the moto control API answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips t when moto is not running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s (docker run -p 5555:5000 motoserver/moto)", Endpoint)
	}
}

// Client returns a shared path-style client for Endpoint.
func Client() (*s3.Client, error) {
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(AccessKeyID, SecretAccessKey, "")),
		)
		if err != nil {
			clientErr = fmt.Errorf("load config: %w", err)
			return
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	return client, clientErr
}

// SampleBucket creates a bucket named after t holding files (key to
// content) and removes it when t ends.
func SampleBucket(t *testing.T, ctx context.Context, files map[string]string) string {
	t.Helper()
	c, err := Client()
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}

	name := strings.NewReplacer("/", "-", "_", "-").Replace(strings.ToLower(t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)

	if _, err := c.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { removeBucket(t, c, name) })

	for key, content := range files {
		_, err := c.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(name),
			Key:    aws.String(key),
			Body:   strings.NewReader(content),
		})
		if err != nil {
			t.Fatalf("put %s/%s: %v", name, key, err)
		}
	}
	return name
}

func removeBucket(t *testing.T, c *s3.Client, bucket string) {
	ctx := context.Background()
	pages := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			t.Logf("list %s: %v", bucket, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				t.Logf("delete %s/%s: %v", bucket, aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("delete bucket %s: %v", bucket, err)
	}
}
