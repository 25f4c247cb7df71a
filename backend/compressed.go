package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultCompressionThreshold is the minimum value size before compression
	// is attempted. zstd overhead is not worth it for smaller payloads.
	DefaultCompressionThreshold = 2048

	// MaxDecompressedSize is the hard cap during decompression to prevent
	// compression bombs.
	MaxDecompressedSize = 10 * 1024 * 1024
)

// zstdMagic starts every zstd frame. Cache records begin with '[' so the two
// never collide.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressed wraps a Backend and transparently zstd-compresses large values.
// Values shorter than the threshold, or that do not shrink, are stored as is,
// and uncompressed values already in the wrapped backend are read unchanged.
type Compressed struct {
	backend   Backend
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressed creates a compressing wrapper around b. A threshold <= 0
// selects DefaultCompressionThreshold.
func NewCompressed(b Backend, threshold int) (*Compressed, error) {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Compressed{
		backend:   b,
		threshold: threshold,
		encoder:   enc,
		decoder:   dec,
	}, nil
}

// Close releases encoder and decoder resources. It does not close the
// wrapped backend.
func (c *Compressed) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// Get retrieves and, if needed, decompresses the value at key.
func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}

	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, fmt.Errorf("decompressing %s: payload exceeds %d bytes", key, MaxDecompressedSize)
		}
		return nil, fmt.Errorf("decompressing %s: %w", key, err)
	}
	return out, nil
}

// Set stores value at key, compressed when that saves space.
func (c *Compressed) Set(ctx context.Context, key string, value []byte) error {
	if len(value) < c.threshold {
		return c.backend.Set(ctx, key, value)
	}

	compressed := c.encoder.EncodeAll(value, make([]byte, 0, len(value)/2))
	if len(compressed) >= len(value) {
		return c.backend.Set(ctx, key, value)
	}
	return c.backend.Set(ctx, key, compressed)
}

// Remove deletes the value at key.
func (c *Compressed) Remove(ctx context.Context, key string) error {
	return c.backend.Remove(ctx, key)
}

// Keys delegates to the wrapped backend.
func (c *Compressed) Keys(ctx context.Context, limit int) ([]string, error) {
	return c.backend.Keys(ctx, limit)
}

// Unwrap returns the underlying backend.
func (c *Compressed) Unwrap() Backend {
	return c.backend
}

var _ Backend = (*Compressed)(nil)
