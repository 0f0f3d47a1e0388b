package wire

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses and decompresses chunk payloads for one compressor
// id. Implementations must round-trip: Decompress(Compress(b)) == b.
type Compressor interface {
	ID() CompressorID
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressorSet maps every negotiable compressor id to its implementation.
// Capability negotiation (§4.4) picks one entry; the id travels in chunk
// flags thereafter.
func CompressorSet() map[CompressorID]Compressor {
	return map[CompressorID]Compressor{
		CompressorNone:   noneCompressor{},
		CompressorLZ4:    lz4Compressor{},
		CompressorZlib:   zlibCompressor{},
		CompressorBrotli: brotliCompressor{},
	}
}

type noneCompressor struct{}

func (noneCompressor) ID() CompressorID                      { return CompressorNone }
func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// lz4Compressor wraps github.com/pierrec/lz4/v4 for the "lz4" compressor id.
type lz4Compressor struct{}

func (lz4Compressor) ID() CompressorID { return CompressorLZ4 }

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 flush: %w", err)
	}
	return out.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

// zlibCompressor uses the standard library: zlib is a wire format, not a
// library choice, so there is no ecosystem package to prefer over it.
type zlibCompressor struct{}

func (zlibCompressor) ID() CompressorID { return CompressorZlib }

func (zlibCompressor) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib flush: %w", err)
	}
	return out.Bytes(), nil
}

func (zlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out, nil
}

// brotliCompressor wraps github.com/andybalholm/brotli for the "brotli"
// compressor id.
type brotliCompressor struct{}

func (brotliCompressor) ID() CompressorID { return CompressorBrotli }

func (brotliCompressor) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := brotli.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli flush: %w", err)
	}
	return out.Bytes(), nil
}

func (brotliCompressor) Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}
	return out, nil
}
