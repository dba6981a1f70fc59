// Package noopcodec provides a pass-through codec (no compression).
package noopcodec

import (
	"github.com/legendaryobs/crystal/internal/codec"
)

// Compile-time check that Codec implements codec.Codec.
var _ codec.Codec = (*Codec)(nil)

func init() {
	codec.Register("none", func() (codec.Codec, error) { return New(), nil })
}

// Codec stores values unchanged.
type Codec struct{}

// New returns a new pass-through codec.
func New() *Codec {
	return &Codec{}
}

// Encode returns data unchanged.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	return data, nil
}

// Decode returns data unchanged.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// Name returns "none".
func (c *Codec) Name() string {
	return "none"
}
