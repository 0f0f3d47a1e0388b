package wire

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkEncodeDecodeRoundTrip(t *testing.T) {
	c := Chunk{
		Compressed:   true,
		Compressor:   CompressorLZ4,
		Ciphered:     true,
		MoreToFollow: true,
		Level:        1,
		Index:        3,
		Payload:      []byte("hello chunk payload"),
	}
	data := EncodeChunk(c)
	require.Equal(t, FrameMagic, data[0])

	got, err := ReadChunk(bytes.NewReader(data), 1<<20)
	require.NoError(t, err)
	copy(c.RawHeader[:], data[:chunkHeaderLen]) // ReadChunk keeps the header it parsed
	require.Equal(t, c, got)
}

func TestChunkEmptyPayloadIsLegal(t *testing.T) {
	c := Chunk{Level: 0, Index: 0}
	data := EncodeChunk(c)
	got, err := ReadChunk(bytes.NewReader(data), 1<<20)
	require.NoError(t, err)
	require.Empty(t, got.Payload)
}

func TestChunkOverLimitIsProtocolError(t *testing.T) {
	c := Chunk{Payload: bytes.Repeat([]byte{0}, 1000)}
	data := EncodeChunk(c)

	_, err := ReadChunk(bytes.NewReader(data), 100)
	require.Error(t, err)
	var bp *BadPacket
	require.ErrorAs(t, err, &bp)
}

func TestChunkBadMagicIsProtocolError(t *testing.T) {
	data := EncodeChunk(Chunk{Payload: []byte("x")})
	data[0] = 'Q'

	_, err := ReadChunk(bytes.NewReader(data), 1<<20)
	require.Error(t, err)
}

func TestShouldCompressThreshold(t *testing.T) {
	require.False(t, ShouldCompress(128))
	require.True(t, ShouldCompress(129))
}

func TestCompressorsRoundTrip(t *testing.T) {
	payload := make([]byte, 4<<20)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	for id, c := range CompressorSet() {
		compressed, err := c.Compress(payload)
		require.NoError(t, err, "compressor %d", id)

		out, err := c.Decompress(compressed)
		require.NoError(t, err, "compressor %d", id)
		require.Equal(t, payload, out, "compressor %d", id)
	}
}

func TestCiphersRoundTrip(t *testing.T) {
	key := DeriveSessionKey("shared-secret", bytes.Repeat([]byte{9}, 16), 1000)
	header := []byte{FrameMagic, 0, 0, 0, 0, 0, 0, 0}
	plaintext := []byte("this is a secret draw packet payload")

	for _, mode := range []CipherMode{CipherCBC, CipherGCM, CipherCFB, CipherCTR} {
		c, err := NewCipher(mode, key)
		require.NoError(t, err, mode)

		sealed, err := c.Seal(header, plaintext)
		require.NoError(t, err, mode)

		opened, err := c.Open(header, sealed)
		require.NoError(t, err, mode)
		require.Equal(t, plaintext, opened, mode)
	}
}

func TestGCMAuthenticationFailureIsRejected(t *testing.T) {
	key := DeriveSessionKey("shared-secret", bytes.Repeat([]byte{1}, 16), 1000)
	header := []byte{FrameMagic, 0, 0, 0, 0, 0, 0, 0}

	c, err := NewCipher(CipherGCM, key)
	require.NoError(t, err)

	sealed, err := c.Seal(header, []byte("authentic payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = c.Open(header, tampered)
	require.Error(t, err)
}
