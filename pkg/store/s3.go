package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3api "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, in *s3api.HeadObjectInput, optFns ...func(*s3api.Options)) (*s3api.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3api.PutObjectInput, optFns ...func(*s3api.Options)) (*s3api.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3api.GetObjectInput, optFns ...func(*s3api.Options)) (*s3api.GetObjectOutput, error)
}

// S3Store keeps artifacts as objects in an S3 bucket, below an optional key
// prefix. A single PutObject is atomic, so no staging is needed.
type S3Store struct {
	Client S3API
	Bucket string
	Prefix string
}

// NewS3Store returns an S3Store for bucket and prefix.
func NewS3Store(cli S3API, bucket, prefix string) (*S3Store, error) {
	if cli == nil {
		return nil, errors.New("store: nil S3 client")
	}

	if bucket == "" {
		return nil, errors.New("store: empty S3 bucket")
	}

	return &S3Store{Client: cli, Bucket: bucket, Prefix: prefix}, nil
}

func (s *S3Store) objectKey(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	if s.Prefix == "" {
		return k, nil
	}

	return path.Join(s.Prefix, k), nil
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return false, err
	}

	_, err = s.Client.HeadObject(ctx, &s3api.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(k),
	})
	if err == nil {
		return true, nil
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound {
		return false, nil
	}

	return false, fmt.Errorf("store: head s3://%s/%s: %w", s.Bucket, k, err)
}

// Put implements Store. Non-seekable readers are buffered so the request
// can be signed.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}

	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("store: read %s: %w", key, err)
		}
		body = bytes.NewReader(data)
	}

	put := &s3api.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(k),
		Body:        body,
		ContentType: aws.String(contentType(k)),
	}

	if _, err := s.Client.PutObject(ctx, put); err != nil {
		return fmt.Errorf("store: put s3://%s/%s: %w", s.Bucket, k, err)
	}

	return nil
}

// Get returns the stored bytes for key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.Client.GetObject(ctx, &s3api.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("store: get s3://%s/%s: %w", s.Bucket, k, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
