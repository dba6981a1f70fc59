// Package snapshot exports crystals to, and restores them from, an external
// blob sink.
//
// A snapshot is one blob: the records as JSON lines, compressed with the
// configured codec. It lets a process running on in-process storage carry its
// crystals across restarts, and lets operators move data between backends.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/internal/codec"
)

// ErrNotFound indicates the sink holds no snapshot under the requested name.
var ErrNotFound = errors.New("snapshot: not found")

// DefaultName is the base name of the snapshot blob.
const DefaultName = "crystals.jsonl"

// maxLine bounds a single encoded record.
const maxLine = 16 << 20

// Sink stores snapshot blobs.
type Sink interface {
	// Write replaces the blob stored under name.
	Write(ctx context.Context, name string, data []byte) error

	// Read returns the blob stored under name, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Close releases any resources held by the sink.
	Close() error
}

// Source yields the records to export.
type Source interface {
	Records(ctx context.Context) iter.Seq2[*crystal.Record, error]
}

// Target receives imported records.
type Target interface {
	Restore(ctx context.Context, rec *crystal.Record) error
}

// Snapshotter moves records between a store and a sink.
type Snapshotter struct {
	sink   Sink
	codec  codec.Codec
	name   string
	logger *zap.Logger
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithName sets the blob base name. The codec extension is appended.
func WithName(name string) Option {
	return func(s *Snapshotter) { s.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Snapshotter) { s.logger = l }
}

// New creates a snapshotter writing to sink with codec c.
func New(sink Sink, c codec.Codec, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		sink:   sink,
		codec:  c,
		name:   DefaultName,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Blob returns the full blob name including the codec extension.
func (s *Snapshotter) Blob() string {
	return BlobName(s.name, s.codec)
}

// BlobName appends the extension of c to name.
func BlobName(name string, c codec.Codec) string {
	switch c.Name() {
	case "gzip":
		return name + ".gz"
	case "zstd":
		return name + ".zst"
	default:
		return name
	}
}

// Export writes every record of src to the sink and returns how many were
// written.
func (s *Snapshotter) Export(ctx context.Context, src Source) (int, error) {
	data, n, err := Encode(src.Records(ctx), s.codec)
	if err != nil {
		return 0, err
	}
	if err := s.sink.Write(ctx, s.Blob(), data); err != nil {
		return 0, fmt.Errorf("writing snapshot: %w", err)
	}

	s.logger.Info("snapshot exported",
		zap.String("blob", s.Blob()),
		zap.Int("records", n),
		zap.Int("bytes", len(data)),
	)
	return n, nil
}

// Import restores every record of the snapshot into dst and returns how many
// were restored. Records the target rejects are logged and skipped.
// Returns ErrNotFound when the sink holds no snapshot.
func (s *Snapshotter) Import(ctx context.Context, dst Target) (int, error) {
	data, err := s.sink.Read(ctx, s.Blob())
	if err != nil {
		return 0, err
	}

	records, err := Decode(data, s.codec)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range records {
		if err := dst.Restore(ctx, rec); err != nil {
			if errors.Is(err, crystal.ErrMalformedInput) {
				s.logger.Warn("skipping invalid crystal in snapshot", zap.String("id", rec.ID), zap.Error(err))
				continue
			}
			return n, fmt.Errorf("restoring %s: %w", rec.ID, err)
		}
		n++
	}

	s.logger.Info("snapshot imported",
		zap.String("blob", s.Blob()),
		zap.Int("records", n),
		zap.Int("skipped", len(records)-n),
	)
	return n, nil
}

// Close closes the sink.
func (s *Snapshotter) Close() error {
	return s.sink.Close()
}

// Encode renders records as compressed JSON lines.
func Encode(records iter.Seq2[*crystal.Record, error], c codec.Codec) ([]byte, int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	n := 0
	for rec, err := range records {
		if err != nil {
			return nil, 0, fmt.Errorf("reading records: %w", err)
		}
		if err := enc.Encode(rec); err != nil {
			return nil, 0, fmt.Errorf("encoding %s: %w", rec.ID, err)
		}
		n++
	}

	data, err := c.Encode(buf.Bytes())
	if err != nil {
		return nil, 0, fmt.Errorf("compressing snapshot: %w", err)
	}
	return data, n, nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte, c codec.Codec) ([]*crystal.Record, error) {
	raw, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var records []*crystal.Record
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec crystal.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, &rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return records, nil
}
