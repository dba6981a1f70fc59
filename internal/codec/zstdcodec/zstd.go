// Package zstdcodec provides a zstd compression codec.
package zstdcodec

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/legendaryobs/crystal/internal/codec"
)

// Compile-time check that Codec implements codec.Codec.
var _ codec.Codec = (*Codec)(nil)

func init() {
	codec.Register("zstd", func() (codec.Codec, error) { return New(), nil })
}

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls
// and expensive to build, so they are shared by every Codec.
var (
	initOnce sync.Once
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	initErr  error
)

func setup() error {
	initOnce.Do(func() {
		encoder, initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if initErr != nil {
			return
		}
		decoder, initErr = zstd.NewReader(nil)
	})
	return initErr
}

// Codec implements zstd compression.
type Codec struct{}

// New returns a new zstd codec.
func New() *Codec {
	return &Codec{}
}

// Encode compresses data.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if err := setup(); err != nil {
		return nil, err
	}
	return encoder.EncodeAll(data, nil), nil
}

// Decode decompresses data.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if err := setup(); err != nil {
		return nil, err
	}
	return decoder.DecodeAll(data, nil)
}

// Name returns "zstd".
func (c *Codec) Name() string {
	return "zstd"
}
