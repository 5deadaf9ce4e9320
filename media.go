package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MediaStore is the external host that keeps the audio bytes. The backend
// never reads them back; it only records the URL and key returned here.
type MediaStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// storageKey spreads uploads by date, one uuid per object.
func storageKey() string {
	d := time.Now()
	return fmt.Sprintf("audio/%d/%02d/%02d/%s", d.Year(), int(d.Month()), d.Day(), uuid.New())
}

// S3MediaStore stores objects in an S3-compatible bucket. MinIO works via
// the custom endpoint with path-style addressing.
type S3MediaStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	baseURL string
}

func NewS3MediaStore(ctx context.Context, region, endpoint, accessKey, secretKey, bucket, baseURL string) (*S3MediaStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3MediaStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

func (m *S3MediaStore) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading object: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", m.baseURL, m.bucket, key), nil
}

func (m *S3MediaStore) Delete(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

func (m *S3MediaStore) PresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := m.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presigning object: %w", err)
	}
	return req.URL, nil
}

// MemoryMediaStore keeps objects in a map. Used by tests and by local runs
// without S3 configuration, the same way the memory DB adapter is.
type MemoryMediaStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryMediaStore() *MemoryMediaStore {
	return &MemoryMediaStore{objects: map[string][]byte{}}
}

func (m *MemoryMediaStore) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = buf.Bytes()
	m.mu.Unlock()
	return "memory://" + key, nil
}

func (m *MemoryMediaStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryMediaStore) PresignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "memory://" + key, nil
}

// Has reports whether an object is present. Test helper.
func (m *MemoryMediaStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Len reports the number of stored objects. Test helper.
func (m *MemoryMediaStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
