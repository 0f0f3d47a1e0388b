package capability

import (
	"errors"
	"fmt"

	"github.com/xpra-project/session-core/internal/wire"
)

// Handshake-level sentinel errors (§7's Authentication/Protocol taxonomy,
// specialized to capability exchange).
var (
	ErrVersionMismatch   = errors.New("capability: version mismatch")
	ErrNoCommonCompressor = errors.New("capability: no common compressor")
	ErrNoCommonEncoder    = errors.New("capability: no common packet encoder")
	ErrAuthFailed         = errors.New("capability: authentication failed")
	ErrChallengeRejected  = errors.New("capability: challenge response rejected")
)

// NegotiateVersion enforces §4.4 step 2: major must match; a client with
// an older minor is refused, a newer minor is tolerated.
func NegotiateVersion(server, client Version) error {
	if server.Major != client.Major {
		return fmt.Errorf("%w: server %s client %s", ErrVersionMismatch, server, client)
	}
	if client.Minor < server.Minor {
		return fmt.Errorf("%w: client %s older than server %s", ErrVersionMismatch, client, server)
	}
	return nil
}

// IntersectOrdered returns the elements of clientOrder that also appear
// in serverSupported, preserving clientOrder's ordering (§4.4: "ordered
// intersection, client order preserved").
func IntersectOrdered(clientOrder, serverSupported []string) []string {
	supported := make(map[string]bool, len(serverSupported))
	for _, s := range serverSupported {
		supported[s] = true
	}
	out := make([]string, 0, len(clientOrder))
	for _, c := range clientOrder {
		if supported[c] {
			out = append(out, c)
		}
	}
	return out
}

// FirstSupported returns the first entry in clientPreference that
// serverSupported also lists (§4.4: "first in client preference that
// server supports").
func FirstSupported(clientPreference, serverSupported []string) (string, bool) {
	supported := make(map[string]bool, len(serverSupported))
	for _, s := range serverSupported {
		supported[s] = true
	}
	for _, c := range clientPreference {
		if supported[c] {
			return c, true
		}
	}
	return "", false
}

// ServerCapabilities describes what this server instance supports, used
// as the right-hand side of every intersection in Intersect.
type ServerCapabilities struct {
	Encodings      []string
	Compressors    []string
	PacketEncoders []string
	Ciphers        []string
}

// Intersected is the negotiated outcome of §4.4 step 4.
type Intersected struct {
	Encodings     []string
	Compressor    string
	PacketEncoder string
	Cipher        string // empty if no cipher was requested or none matched
}

// Intersect computes the negotiated capability set from a client Hello
// against this server's capabilities.
func Intersect(server ServerCapabilities, client Hello) (Intersected, error) {
	encodings := IntersectOrdered(client.EncodingsRequested, server.Encodings)

	compressor, ok := FirstSupported(client.Compressors, server.Compressors)
	if !ok {
		return Intersected{}, ErrNoCommonCompressor
	}

	packetEncoder, ok := FirstSupported(client.PacketEncoders, server.PacketEncoders)
	if !ok {
		return Intersected{}, ErrNoCommonEncoder
	}

	var cipher string
	if len(client.CipherPreferences) > 0 {
		cipher, _ = FirstSupported(client.CipherPreferences, server.Ciphers)
	}

	return Intersected{
		Encodings:     encodings,
		Compressor:    compressor,
		PacketEncoder: packetEncoder,
		Cipher:        cipher,
	}, nil
}

// Challenge is the structured form of a challenge packet (§4.4 step 3).
type Challenge struct {
	Salt           []byte
	DigestsOffered []string
	Prompt         string
	CipherParams   map[string]wire.Value
}

func (c Challenge) ToPacket() wire.Packet {
	return wire.New(wire.PacketChallenge, map[string]wire.Value{
		"salt":            c.Salt,
		"digests_offered": toValueList(c.DigestsOffered),
		"prompt":          c.Prompt,
		"cipher_params":   toValueMap(c.CipherParams),
	})
}

func ChallengeFromPacket(pkt wire.Packet) (Challenge, error) {
	if pkt.Type != wire.PacketChallenge {
		return Challenge{}, fmt.Errorf("not a challenge packet: %s", pkt.Type)
	}
	if len(pkt.Args) == 0 {
		return Challenge{}, fmt.Errorf("challenge packet missing args")
	}
	m, ok := pkt.Args[0].(map[string]wire.Value)
	if !ok {
		return Challenge{}, fmt.Errorf("challenge packet args malformed")
	}
	c := Challenge{}
	if v, ok := m["salt"].([]byte); ok {
		c.Salt = v
	}
	c.DigestsOffered = stringList(m["digests_offered"])
	if v, ok := m["prompt"].(string); ok {
		c.Prompt = v
	}
	if v, ok := m["cipher_params"].(map[string]wire.Value); ok {
		c.CipherParams = v
	}
	return c, nil
}

// digestStrengthOrder fixes the preference order used to pick "the
// strongest digest both sides support" (§4.4 step 3).
var digestStrengthOrder = []string{"sha512", "sha384", "sha256", "sha1"}

// StrongestDigest returns the strongest digest both serverDigests and
// clientDigests list.
func StrongestDigest(serverDigests, clientDigests []string) (string, bool) {
	server := make(map[string]bool, len(serverDigests))
	for _, d := range serverDigests {
		server[d] = true
	}
	client := make(map[string]bool, len(clientDigests))
	for _, d := range clientDigests {
		client[d] = true
	}
	for _, d := range digestStrengthOrder {
		if server[d] && client[d] {
			return d, true
		}
	}
	return "", false
}
