package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xpra-project/session-core/internal/wire"
)

func TestHelloPacketRoundTrip(t *testing.T) {
	h := Hello{
		Version:            "1.2",
		UUID:                "client-uuid",
		EncodingsRequested:  []string{"rgb", "png", "jpeg"},
		Compressors:         []string{"lz4", "none"},
		PacketEncoders:      []string{"primary"},
		AuthCapabilities:    []string{"shared-secret"},
		CipherPreferences:   []string{"GCM"},
		Share:                true,
		Options: map[string]wire.Value{
			"keyboard-sync": true,
			"clipboard":     true,
		},
	}
	pkt := h.ToPacket()
	got, err := HelloFromPacket(pkt)
	require.NoError(t, err)
	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.UUID, got.UUID)
	require.Equal(t, h.EncodingsRequested, got.EncodingsRequested)
	require.Equal(t, h.Compressors, got.Compressors)
	require.Equal(t, h.Share, got.Share)
	require.Equal(t, true, got.Options["keyboard-sync"])
}

func TestNegotiateVersion(t *testing.T) {
	require.NoError(t, NegotiateVersion(Version{1, 2}, Version{1, 3}))
	require.NoError(t, NegotiateVersion(Version{1, 2}, Version{1, 2}))
	require.ErrorIs(t, NegotiateVersion(Version{1, 2}, Version{1, 1}), ErrVersionMismatch)
	require.ErrorIs(t, NegotiateVersion(Version{1, 0}, Version{2, 0}), ErrVersionMismatch)
}

func TestIntersectOrderedPreservesClientOrder(t *testing.T) {
	got := IntersectOrdered([]string{"jpeg", "rgb", "png"}, []string{"rgb", "png"})
	require.Equal(t, []string{"rgb", "png"}, got)
}

func TestIntersectPicksFirstSupportedCompressor(t *testing.T) {
	server := ServerCapabilities{
		Encodings:      []string{"rgb", "png", "jpeg"},
		Compressors:    []string{"none", "lz4"},
		PacketEncoders: []string{"primary"},
		Ciphers:        []string{"GCM", "CBC"},
	}
	client := Hello{
		EncodingsRequested: []string{"jpeg", "rgb"},
		Compressors:        []string{"brotli", "lz4", "none"},
		PacketEncoders:     []string{"primary"},
		CipherPreferences:  []string{"CBC"},
	}
	got, err := Intersect(server, client)
	require.NoError(t, err)
	require.Equal(t, []string{"jpeg", "rgb"}, got.Encodings)
	require.Equal(t, "lz4", got.Compressor)
	require.Equal(t, "primary", got.PacketEncoder)
	require.Equal(t, "CBC", got.Cipher)
}

func TestIntersectNoCommonCompressorFails(t *testing.T) {
	server := ServerCapabilities{Compressors: []string{"none"}, PacketEncoders: []string{"primary"}}
	client := Hello{Compressors: []string{"brotli"}, PacketEncoders: []string{"primary"}}
	_, err := Intersect(server, client)
	require.ErrorIs(t, err, ErrNoCommonCompressor)
}

func TestStrongestDigestPrefersSHA512(t *testing.T) {
	d, ok := StrongestDigest([]string{"sha256", "sha512", "sha1"}, []string{"sha256", "sha512"})
	require.True(t, ok)
	require.Equal(t, "sha512", d)
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	serverSalt := []byte("0123456789abcdef")
	clientSalt := []byte("fedcba9876543210")
	password := []byte("correct horse battery staple")

	resp, err := ComputeChallengeResponse("sha256", password, serverSalt, clientSalt)
	require.NoError(t, err)

	ok, err := VerifyChallengeResponse("sha256", password, serverSalt, clientSalt, resp)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyChallengeResponse("sha256", []byte("wrong password"), serverSalt, clientSalt, resp)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthChainSucceedsOnFirstTry(t *testing.T) {
	serverSalt := []byte("0123456789abcdef")
	clientSalt := []byte("fedcba9876543210")
	chain := Chain{Modules: []AuthModule{SharedSecretModule{ModuleName: "shared", Secret: "s3cret"}}}

	exchange := func(ctx context.Context, ch Challenge) ([]byte, []byte, string, error) {
		digest, _ := StrongestDigest(ch.DigestsOffered, []string{"sha256"})
		resp, err := ComputeChallengeResponse(digest, []byte("s3cret"), ch.Salt, clientSalt)
		return resp, clientSalt, digest, err
	}

	err := chain.Authenticate(context.Background(), "client", serverSalt, 3, exchange)
	require.NoError(t, err)
}

func TestAuthChainFailsOnWrongSecret(t *testing.T) {
	serverSalt := []byte("0123456789abcdef")
	clientSalt := []byte("fedcba9876543210")
	chain := Chain{Modules: []AuthModule{SharedSecretModule{ModuleName: "shared", Secret: "s3cret"}}}

	exchange := func(ctx context.Context, ch Challenge) ([]byte, []byte, string, error) {
		digest, _ := StrongestDigest(ch.DigestsOffered, []string{"sha256"})
		resp, err := ComputeChallengeResponse(digest, []byte("wrong"), ch.Salt, clientSalt)
		return resp, clientSalt, digest, err
	}

	err := chain.Authenticate(context.Background(), "client", serverSalt, 2, exchange)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestChallengePacketRoundTrip(t *testing.T) {
	c := Challenge{
		Salt:           []byte("saltsaltsaltsalt"),
		DigestsOffered: []string{"sha512", "sha256"},
		Prompt:         "password",
	}
	pkt := c.ToPacket()
	got, err := ChallengeFromPacket(pkt)
	require.NoError(t, err)
	require.Equal(t, c.Salt, got.Salt)
	require.Equal(t, c.DigestsOffered, got.DigestsOffered)
	require.Equal(t, c.Prompt, got.Prompt)
}
