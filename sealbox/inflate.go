package sealbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the optional plaintext compression applied before
// sealing.
type Compression uint8

const (
	// CompressionNone stores the plaintext as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 wraps the plaintext in an lz4 frame (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD wraps the plaintext in a zstd frame (better ratio).
	CompressionZSTD Compression = 2
)

// ErrCorruptPayload is returned when an authenticated plaintext carries a
// compression frame that does not decode. The envelope was genuine; the
// compressed payload inside it is broken.
var ErrCorruptPayload = errors.New("sealbox: corrupt compressed payload")

// Frame magic numbers, as written by the respective encoders.
var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// inflate detects a compression frame by its magic number and decodes it.
// Plaintext without a known magic passes through untouched.
func inflate(b []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		out, err := dec.DecodeAll(b, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
		}
		return out, nil

	case bytes.HasPrefix(b, lz4Magic):
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
		}
		return out, nil

	default:
		return b, nil
	}
}

// Compress encodes b with the selected algorithm. It is the writer-side
// counterpart of the transparent inflation in OpenBytes.
func Compress(b []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return b, nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)

		return enc.EncodeAll(b, nil), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, fmt.Errorf("sealbox: lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("sealbox: lz4: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("sealbox: unknown compression %d", c)
	}
}
