package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameMagic is byte 0 of every chunk header (§4.1, §6).
const FrameMagic = byte('P')

// Chunk flag bits (byte 1 of the header).
const (
	FlagCompressed  = 1 << 0
	FlagCompressorLow = 1 << 1 // bits 1-2 together encode the compressor id
	FlagCompressorHigh = 1 << 2
	FlagCipherBlock = 1 << 3
	FlagMoreToFollow = 1 << 4
)

// chunkHeaderLen is the fixed 8-byte header preceding every chunk payload.
const chunkHeaderLen = 8

// CompressorID is the 2-bit compressor identifier carried in chunk flags.
type CompressorID byte

const (
	CompressorNone   CompressorID = 0
	CompressorLZ4    CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorBrotli CompressorID = 3
)

// neverCompressBelow is the size below which a chunk is never compressed
// (§4.1): "A chunk ≤128 bytes is never compressed."
const neverCompressBelow = 128

// Chunk is one framed unit on the wire.
type Chunk struct {
	Compressed  bool
	Compressor  CompressorID
	Ciphered    bool
	MoreToFollow bool
	Level       uint8 // 0 = main packet, 1..n = auxiliary payloads
	Index       uint8 // chunk index within the logical packet
	Payload     []byte

	// RawHeader is the 8-byte header as read off the wire, populated by
	// ReadChunk. Callers applying AEAD ciphers use it as associated data
	// (§4.2: "GCM uses the frame header as AEAD associated data").
	RawHeader [chunkHeaderLen]byte
}

// EncodeChunk serializes a Chunk to its wire representation.
func EncodeChunk(c Chunk) []byte {
	buf := make([]byte, chunkHeaderLen+len(c.Payload))
	buf[0] = FrameMagic

	var flags byte
	if c.Compressed {
		flags |= FlagCompressed
	}
	flags |= byte(c.Compressor&0x3) << 1
	if c.Ciphered {
		flags |= FlagCipherBlock
	}
	if c.MoreToFollow {
		flags |= FlagMoreToFollow
	}
	buf[1] = flags
	buf[2] = c.Level
	buf[3] = c.Index
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(c.Payload)))
	copy(buf[8:], c.Payload)
	return buf
}

// ReadChunk reads and parses exactly one chunk from r, enforcing maxPayload
// as the protocol-error size limit for this chunk's level (§4.1 size limits:
// main ≤256 KiB, auxiliary ≤4 MiB, pre-auth ≤16 KiB).
func ReadChunk(r io.Reader, maxPayload int) (Chunk, error) {
	var header [chunkHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Chunk{}, fmt.Errorf("read chunk header: %w", err)
	}
	if header[0] != FrameMagic {
		return Chunk{}, badf("bad frame magic 0x%02x", header[0])
	}

	flags := header[1]
	length := binary.BigEndian.Uint32(header[4:8])
	if int(length) > maxPayload {
		return Chunk{}, badf("chunk payload %d exceeds limit %d", length, maxPayload)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Chunk{}, fmt.Errorf("read chunk payload: %w", err)
		}
	}

	return Chunk{
		Compressed:   flags&FlagCompressed != 0,
		Compressor:   CompressorID((flags >> 1) & 0x3),
		Ciphered:     flags&FlagCipherBlock != 0,
		MoreToFollow: flags&FlagMoreToFollow != 0,
		Level:        header[2],
		Index:        header[3],
		Payload:      payload,
		RawHeader:    header,
	}, nil
}

// ShouldCompress reports whether a payload of this size is eligible for
// compression under the "never compress tiny chunks" rule.
func ShouldCompress(payloadLen int) bool {
	return payloadLen > neverCompressBelow
}
