package snapshot_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/internal/codec"
	"github.com/legendaryobs/crystal/internal/codec/gzipcodec"
	"github.com/legendaryobs/crystal/internal/codec/noopcodec"
	"github.com/legendaryobs/crystal/internal/codec/zstdcodec"
	"github.com/legendaryobs/crystal/internal/snapshot"
	"github.com/legendaryobs/crystal/internal/snapshot/disksink"
)

// memSink keeps blobs in a map.
type memSink struct {
	blobs map[string][]byte
}

func newMemSink() *memSink { return &memSink{blobs: map[string][]byte{}} }

func (m *memSink) Write(ctx context.Context, name string, data []byte) error {
	m.blobs[name] = data
	return nil
}

func (m *memSink) Read(ctx context.Context, name string) ([]byte, error) {
	data, ok := m.blobs[name]
	if !ok {
		return nil, snapshot.ErrNotFound
	}
	return data, nil
}

func (m *memSink) Close() error { return nil }

func newStore(t *testing.T) *crystal.Store {
	t.Helper()
	s, err := crystal.New(context.Background())
	if err != nil {
		t.Fatalf("crystal.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		codec codec.Codec
		want  string
	}{
		{noopcodec.New(), "crystals.jsonl"},
		{gzipcodec.New(), "crystals.jsonl.gz"},
		{zstdcodec.New(), "crystals.jsonl.zst"},
	}
	for _, tt := range tests {
		if got := snapshot.BlobName(snapshot.DefaultName, tt.codec); got != tt.want {
			t.Errorf("BlobName(%s) = %q, want %q", tt.codec.Name(), got, tt.want)
		}
	}
}

func TestSnapshotter_RoundTrip(t *testing.T) {
	codecs := []codec.Codec{noopcodec.New(), gzipcodec.New(), zstdcodec.New()}

	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			src := newStore(t)

			var ids []string
			for i := range 5 {
				id, err := src.Put(ctx, crystal.CategoryWorkflow, map[string]any{"step": i}, map[string]any{"i": i})
				if err != nil {
					t.Fatalf("Put() error = %v", err)
				}
				ids = append(ids, id)
			}
			src.Get(ctx, ids[0])

			sink := newMemSink()
			snap := snapshot.New(sink, c)

			n, err := snap.Export(ctx, src)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if n != 5 {
				t.Errorf("Export() = %d, want 5", n)
			}

			dst := newStore(t)
			n, err = snap.Import(ctx, dst)
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			if n != 5 {
				t.Errorf("Import() = %d, want 5", n)
			}

			rec, err := dst.Get(ctx, ids[0])
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if rec.AccessCount != 2 {
				t.Errorf("AccessCount = %d, want 2", rec.AccessCount)
			}
		})
	}
}

func TestSnapshotter_ImportNotFound(t *testing.T) {
	snap := snapshot.New(newMemSink(), noopcodec.New())

	if _, err := snap.Import(context.Background(), newStore(t)); !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("Import() error = %v, want ErrNotFound", err)
	}
}

func TestSnapshotter_ImportSkipsInvalid(t *testing.T) {
	ctx := context.Background()

	src := newStore(t)
	id, _ := src.Put(ctx, crystal.CategoryDebug, "ok", nil)

	bad, _ := json.Marshal(crystal.Record{ID: "ffffffffffff", Category: crystal.CategoryDebug, Pattern: json.RawMessage(`"tampered"`)})
	data, _, err := snapshot.Encode(src.Records(ctx), noopcodec.New())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	data = append(data, bad...)
	data = append(data, '\n')

	sink := newMemSink()
	sink.blobs[snapshot.DefaultName] = data

	dst := newStore(t)
	n, err := snapshot.New(sink, noopcodec.New()).Import(ctx, dst)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Import() = %d, want 1", n)
	}
	if _, err := dst.Get(ctx, id); err != nil {
		t.Errorf("Get() error = %v", err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := snapshot.Decode([]byte("{not json}\n"), noopcodec.New()); err == nil {
		t.Error("Decode() expected error for invalid line")
	}
	if _, err := snapshot.Decode([]byte("garbage"), zstdcodec.New()); err == nil {
		t.Error("Decode() expected error for invalid compression")
	}
}

func TestSnapshotter_Disk(t *testing.T) {
	ctx := context.Background()
	sink, err := disksink.New(t.TempDir())
	if err != nil {
		t.Fatalf("disksink.New() error = %v", err)
	}

	src := newStore(t)
	src.Put(ctx, crystal.CategoryCreative, "idea", nil)

	snap := snapshot.New(sink, zstdcodec.New(), snapshot.WithName("backup.jsonl"))
	if snap.Blob() != "backup.jsonl.zst" {
		t.Errorf("Blob() = %q", snap.Blob())
	}
	if _, err := snap.Export(ctx, src); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst := newStore(t)
	if n, err := snap.Import(ctx, dst); err != nil || n != 1 {
		t.Errorf("Import() = %d, %v; want 1, nil", n, err)
	}
}
