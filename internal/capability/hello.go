// Package capability implements the capability exchange handshake (C4,
// §4.4): hello/challenge, auth module chaining, and capability
// intersection. It operates purely on wire.Packet values — callers own
// the endpoint that sends and receives them.
package capability

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xpra-project/session-core/internal/wire"
)

// Version is a {major, minor} protocol version, compared per §4.4: major
// must match exactly; a client with a newer minor is tolerated, one with
// an older minor is refused.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses a "major.minor" version string.
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("malformed version major %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("malformed version minor %q: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Hello is the structured form of a hello packet (§4.4), sent once by
// the client to open the handshake and again, carrying a challenge
// response, once an auth module has issued a challenge.
type Hello struct {
	Version            string
	UUID               string
	EncodingsRequested []string
	Compressors        []string
	PacketEncoders     []string
	AuthCapabilities   []string
	DisplayInfo        map[string]wire.Value
	CipherPreferences  []string
	Share              bool
	Steal              bool
	SessionRequest     string // non-empty to request rebind to an existing session

	// Present only on the post-challenge hello.
	ChallengeResponse []byte
	ClientSalt        []byte
	ChallengeDigest   string

	// Options carries the recognized non-exhaustive hello options of
	// §4.4: keyboard-sync, clipboard, clipboard-direction, mmap-file,
	// encoding, quality, speed, min-quality, min-speed,
	// auto-refresh-delay, bandwidth-limit, scaling, desktop-size, dpi,
	// cursors, bell, notifications, file-transfer, printing, readonly.
	Options map[string]wire.Value
}

func stringList(v wire.Value) []string {
	list, ok := v.([]wire.Value)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toValueList(ss []string) []wire.Value {
	out := make([]wire.Value, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toValueMap(m map[string]wire.Value) wire.Value {
	if m == nil {
		return map[string]wire.Value{}
	}
	return m
}

// ToPacket encodes h as a hello wire.Packet. All fields are carried in a
// single map[string]Value argument so the fallback (JSON) and primary
// encoders both round-trip it without a fixed positional schema.
func (h Hello) ToPacket() wire.Packet {
	m := map[string]wire.Value{
		"version":             h.Version,
		"uuid":                h.UUID,
		"encodings_requested": toValueList(h.EncodingsRequested),
		"compressors":         toValueList(h.Compressors),
		"packet_encoders":     toValueList(h.PacketEncoders),
		"auth_capabilities":   toValueList(h.AuthCapabilities),
		"display_info":        toValueMap(h.DisplayInfo),
		"cipher_preferences":  toValueList(h.CipherPreferences),
		"share":               h.Share,
		"steal":               h.Steal,
		"session_request":     h.SessionRequest,
		"options":             toValueMap(h.Options),
	}
	if len(h.ChallengeResponse) > 0 {
		m["challenge_response"] = h.ChallengeResponse
		m["client_salt"] = h.ClientSalt
		m["challenge_digest"] = h.ChallengeDigest
	}
	return wire.New(wire.PacketHello, m)
}

// HelloFromPacket decodes a hello wire.Packet produced by ToPacket.
func HelloFromPacket(pkt wire.Packet) (Hello, error) {
	if pkt.Type != wire.PacketHello {
		return Hello{}, fmt.Errorf("not a hello packet: %s", pkt.Type)
	}
	if len(pkt.Args) == 0 {
		return Hello{}, fmt.Errorf("hello packet missing args")
	}
	m, ok := pkt.Args[0].(map[string]wire.Value)
	if !ok {
		return Hello{}, fmt.Errorf("hello packet args malformed")
	}

	h := Hello{}
	if v, ok := m["version"].(string); ok {
		h.Version = v
	}
	if v, ok := m["uuid"].(string); ok {
		h.UUID = v
	}
	h.EncodingsRequested = stringList(m["encodings_requested"])
	h.Compressors = stringList(m["compressors"])
	h.PacketEncoders = stringList(m["packet_encoders"])
	h.AuthCapabilities = stringList(m["auth_capabilities"])
	h.CipherPreferences = stringList(m["cipher_preferences"])
	if v, ok := m["display_info"].(map[string]wire.Value); ok {
		h.DisplayInfo = v
	}
	if v, ok := m["options"].(map[string]wire.Value); ok {
		h.Options = v
	}
	if v, ok := m["share"].(bool); ok {
		h.Share = v
	}
	if v, ok := m["steal"].(bool); ok {
		h.Steal = v
	}
	if v, ok := m["session_request"].(string); ok {
		h.SessionRequest = v
	}
	if v, ok := m["challenge_response"].([]byte); ok {
		h.ChallengeResponse = v
	}
	if v, ok := m["client_salt"].([]byte); ok {
		h.ClientSalt = v
	}
	if v, ok := m["challenge_digest"].(string); ok {
		h.ChallengeDigest = v
	}
	return h, nil
}

// ServerHello is the server's closing hello (§4.4 step 5): the
// intersected capability set plus server identity, window list, and
// display geometry.
type ServerHello struct {
	SessionUUID   string
	Encodings     []string
	Compressor    string
	PacketEncoder string
	Cipher        string
	DisplayInfo   map[string]wire.Value
	Windows       []wire.Value
}

func (h ServerHello) ToPacket() wire.Packet {
	return wire.New(wire.PacketHello, map[string]wire.Value{
		"session_uuid":   h.SessionUUID,
		"encodings":      toValueList(h.Encodings),
		"compressor":     h.Compressor,
		"packet_encoder": h.PacketEncoder,
		"cipher":         h.Cipher,
		"display_info":   toValueMap(h.DisplayInfo),
		"windows":        h.Windows,
	})
}
