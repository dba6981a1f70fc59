// Package codec provides compression for stored record values.
package codec

import "fmt"

// Codec compresses and decompresses whole values.
type Codec interface {
	// Encode returns the compressed form of data.
	Encode(data []byte) ([]byte, error)
	// Decode reverses Encode.
	Decode(data []byte) ([]byte, error)
	// Name returns the codec identifier used in configuration ("none", "gzip", "zstd").
	Name() string
}

// Factory constructs a codec.
type Factory func() (Codec, error)

var registry = map[string]Factory{}

// Register makes a codec available to ByName. It panics on duplicates.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic("codec: duplicate registration of " + name)
	}
	registry[name] = f
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return f()
}
