// Package wire implements the session core's on-the-wire representation:
// chunk framing (§4.1), the structured packet codec (§4.2), compressors,
// and ciphers. It has no knowledge of sockets or scheduling — it only
// turns Packets into bytes and back.
package wire

import "fmt"

// PacketType is the closed enumeration of packet tags the session core
// recognizes. DecodePrimary does not check a decoded type against this
// list; unknown value tags on decode are a BadPacket error, never a panic.
type PacketType string

const (
	PacketHello             PacketType = "hello"
	PacketChallenge         PacketType = "challenge"
	PacketDisconnect        PacketType = "disconnect"
	PacketPing              PacketType = "ping"
	PacketPingEcho          PacketType = "ping_echo"
	PacketNewWindow         PacketType = "new-window"
	PacketNewOverrideRedirect PacketType = "new-override-redirect"
	PacketWindowMetadata    PacketType = "window-metadata"
	PacketConfigureOR       PacketType = "configure-override-redirect"
	PacketLostWindow        PacketType = "lost-window"
	PacketDraw              PacketType = "draw"
	PacketScroll             PacketType = "scroll"
	PacketDamageSequence     PacketType = "damage-sequence"
	PacketCursor             PacketType = "cursor"
	PacketBell               PacketType = "bell"
	PacketXSettings          PacketType = "xsettings"
	PacketDesktopSize        PacketType = "desktop-size"
	PacketClipboardToken     PacketType = "clipboard-token"
	PacketClipboardRequest   PacketType = "clipboard-request"
	PacketClipboardContents  PacketType = "clipboard-contents"
	PacketSoundData          PacketType = "sound-data"
	PacketFileTransferData   PacketType = "send-file"
	PacketNotifyShow         PacketType = "notify_show"
	PacketNotifyClose        PacketType = "notify_close"
	PacketControl            PacketType = "control"
	PacketSetKeyboardSync    PacketType = "set-keyboard-sync-enabled"
)

// DisconnectReason enumerates the closed set of disconnect reasons (§4.4.6).
type DisconnectReason string

const (
	ReasonAuthFailed      DisconnectReason = "authentication-failed"
	ReasonVersionMismatch DisconnectReason = "version-mismatch"
	ReasonServerShutdown  DisconnectReason = "server-shutdown"
	ReasonClientExit      DisconnectReason = "client-exit"
	ReasonIdleTimeout     DisconnectReason = "idle-timeout"
	ReasonPolicy          DisconnectReason = "policy"
	ReasonProtocolError   DisconnectReason = "protocol-error"
	ReasonSessionBusy     DisconnectReason = "session-busy"
)

// Value is the set of types a primary-encoded packet argument may hold:
// integers, booleans, byte-strings, UTF-8 strings, ordered sequences, and
// string/int-keyed maps. Floats are never transmitted (§4.2).
type Value = any

// Packet is the structured packet tuple: (packet_type, args...).
type Packet struct {
	Type PacketType
	Args []Value
}

// New builds a Packet from a type tag and positional arguments.
func New(t PacketType, args ...Value) Packet {
	return Packet{Type: t, Args: args}
}

// BadPacket is returned for any decode failure: unknown tag, malformed
// argument, or truncated stream. It is a typed failure, never a crash.
type BadPacket struct {
	Reason string
}

func (e *BadPacket) Error() string {
	return fmt.Sprintf("bad packet: %s", e.Reason)
}

func badf(format string, args ...any) error {
	return &BadPacket{Reason: fmt.Sprintf(format, args...)}
}
