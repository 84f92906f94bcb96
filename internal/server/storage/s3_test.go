package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/formvault/formvault/internal/common"
	sc "github.com/formvault/formvault/internal/server/config"
)

func testStore() *S3Store {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return NewS3Store(cfg)
}

func TestPut_SendsBucketKeyAndBody(t *testing.T) {
	origPut := putObject
	defer func() { putObject = origPut }()

	var gotBucket, gotKey, gotBody string
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		gotBucket = *in.Bucket
		gotKey = *in.Key
		b, _ := io.ReadAll(in.Body)
		gotBody = string(b)
		return &s3.PutObjectOutput{}, nil
	}

	store := testStore()
	if err := store.Put(context.Background(), "forms/f1/2026/09/01/abc", []byte(`{"encrypted":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBucket != store.bucket || gotKey != "forms/f1/2026/09/01/abc" {
		t.Fatalf("unexpected put target: %s/%s", gotBucket, gotKey)
	}
	if gotBody != `{"encrypted":true}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestGet_ReturnsBody(t *testing.T) {
	origGet := getObject
	defer func() { getObject = origGet }()

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("envelope-bytes"))}, nil
	}

	got, err := testStore().Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "envelope-bytes" {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestGet_MissingKeyIsNotFound(t *testing.T) {
	origGet := getObject
	defer func() { getObject = origGet }()

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return nil, &types.NoSuchKey{}
	}

	_, err := testStore().Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete_PropagatesError(t *testing.T) {
	origDelete := deleteObject
	defer func() { deleteObject = origDelete }()

	wantErr := errors.New("s3 down")
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return nil, wantErr
	}

	if err := testStore().Delete(context.Background(), "k"); !errors.Is(err, wantErr) {
		t.Fatalf("want %v, got %v", wantErr, err)
	}
}
