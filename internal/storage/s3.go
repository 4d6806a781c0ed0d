package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	a "github.com/sergioamr/img-api/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const minMultipartSize = 12 << 20

type S3 struct {
	client *a.S3Client
}

func NewS3(c *a.S3Client) *S3 {
	return &S3{client: c}
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}

	_, err = s.client.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.client.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		if a.IsNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to head object, %w", err)
	}

	return true, nil
}

// Put uploads in a single request below 12 MiB and through the multipart
// uploader above it. S3 only exposes the object once the upload completes.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:       s.client.Bucket,
		Key:          aws.String(key),
		Body:         r,
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}

	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if size > minMultipartSize {
		uploader := manager.NewUploader(s.client.C, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})

		_, err = uploader.Upload(ctx, input)
	} else {
		input.ContentLength = aws.Int64(size)
		_, err = s.client.C.PutObject(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to upload object, %w", err)
	}

	return nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.client.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		if a.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to get object, %w", err)
	}

	return out.Body, nil
}

func (s *S3) Remove(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.client.Bucket,
		Key:    aws.String(key),
	})
	if err != nil && !a.IsNotFound(err) {
		return fmt.Errorf("failed to delete object, %w", err)
	}

	return nil
}

func (s *S3) ModTime(ctx context.Context, key string) (time.Time, error) {
	key, err := cleanKey(key)
	if err != nil {
		return time.Time{}, err
	}

	out, err := s.client.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.client.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		if a.IsNotFound(err) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return time.Time{}, fmt.Errorf("failed to head object, %w", err)
	}

	return aws.ToTime(out.LastModified), nil
}
