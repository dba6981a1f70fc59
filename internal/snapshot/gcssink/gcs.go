// Package gcssink stores snapshots in a Google Cloud Storage bucket.
package gcssink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/legendaryobs/crystal/internal/snapshot"
)

// Compile-time check that Sink implements snapshot.Sink.
var _ snapshot.Sink = (*Sink)(nil)

// Sink is a Google Cloud Storage snapshot sink.
type Sink struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// New creates a GCS sink. The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &Sink{
		client: client,
		bucket: client.Bucket(bucketName),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Option configures a Sink.
type Option func(*Sink)

// WithPrefix sets a key prefix for all objects.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// Write uploads the blob, replacing any previous object.
func (s *Sink) Write(ctx context.Context, name string, data []byte) error {
	w := s.bucket.Object(s.key(name)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot upload: %w", err)
	}
	return nil
}

// Read downloads the blob.
func (s *Sink) Read(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.bucket.Object(s.key(name)).NewReader(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, nil
}

// Close releases resources.
func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) key(name string) string {
	return s.prefix + "snapshots/" + name
}

func mapError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return snapshot.ErrNotFound
	}
	return fmt.Errorf("creating reader: %w", err)
}
