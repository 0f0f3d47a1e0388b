package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrimaryCodecRoundTrip(t *testing.T) {
	cases := []Packet{
		New(PacketHello, "v1", int64(42), true),
		New(PacketDraw, int64(7), int64(1), []byte{1, 2, 3, 4}),
		New(PacketWindowMetadata, int64(1), map[string]Value{"title": "xterm", "opacity": int64(255)}),
		New(PacketNewWindow, []Value{int64(0), int64(0), int64(800), int64(600)}),
	}

	for _, p := range cases {
		enc, err := EncodePrimary(p, 512)
		require.NoError(t, err)
		require.Empty(t, enc.Aux, "small args should not be escaped")

		got, err := DecodePrimary(enc.Main, func(uint32) ([]byte, bool) { return nil, false })
		require.NoError(t, err)
		require.Equal(t, p.Type, got.Type)
		require.Equal(t, len(p.Args), len(got.Args))
	}
}

func TestPrimaryCodecLargeBinaryEscape(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 1024)
	p := New(PacketDraw, int64(1), int64(1), big)

	enc, err := EncodePrimary(p, 512)
	require.NoError(t, err)
	require.Len(t, enc.Aux, 1, "the 1024-byte argument should be escaped to one auxiliary payload")
	require.Equal(t, big, enc.Aux[0])

	got, err := DecodePrimary(enc.Main, func(id uint32) ([]byte, bool) {
		if id == 0 {
			return enc.Aux[0], true
		}
		return nil, false
	})
	require.NoError(t, err)
	require.Equal(t, big, got.Args[2])
}

func TestPrimaryCodecUnresolvedPlaceholder(t *testing.T) {
	big := bytes.Repeat([]byte{1}, 600)
	p := New(PacketDraw, big)
	enc, err := EncodePrimary(p, 512)
	require.NoError(t, err)

	_, err = DecodePrimary(enc.Main, func(uint32) ([]byte, bool) { return nil, false })
	require.Error(t, err)
	var bp *BadPacket
	require.ErrorAs(t, err, &bp)
}

func TestDecodePrimaryUnknownTagIsBadPacket(t *testing.T) {
	// packet type "x" with one argument whose value tag 0xff is unknown
	main := []byte{0, 0, 0, 1, 'x', 0, 0, 0, 1, 0xff}
	_, err := DecodePrimary(main, nil)
	require.Error(t, err)
	var bp *BadPacket
	require.ErrorAs(t, err, &bp)
}

func TestFallbackCodecRoundTrip(t *testing.T) {
	p := New(PacketHello, "v1", int64(1))
	data, err := EncodeFallback(p)
	require.NoError(t, err)

	got, err := DecodeFallback(data)
	require.NoError(t, err)
	require.Equal(t, p.Type, got.Type)
}

func TestDecodeFallbackBadJSON(t *testing.T) {
	_, err := DecodeFallback([]byte("{not json"))
	require.Error(t, err)
	var bp *BadPacket
	require.ErrorAs(t, err, &bp)
}
