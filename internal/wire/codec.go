package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Primary encoder tags. Floats are never transmitted (§4.2): values are
// either integers, booleans, byte-strings, UTF-8 strings, ordered
// sequences, or string/int-keyed maps.
const (
	tagInt         = 0x01
	tagBool        = 0x02
	tagBytes       = 0x03
	tagString      = 0x04
	tagList        = 0x05
	tagMapString   = 0x06
	tagMapInt      = 0x07
	tagPlaceholder = 0x08
)

// placeholder stands in for a large byte-string argument that was escaped
// into an auxiliary chunk during encoding (§4.2 large-binary escape).
type placeholder struct {
	InlineID uint32
	Length   uint32
}

// Encoded is the result of encoding one logical packet: the level-0 main
// chunk payload, plus zero or more auxiliary payloads in emission order.
// The sender MUST emit the auxiliary chunks before the next logical
// packet's level-0 chunk (§4.1).
type Encoded struct {
	Main []byte
	Aux  [][]byte
}

// EncodePrimary encodes p with the primary encoder, escaping any
// byte-string argument longer than threshold into an auxiliary payload.
func EncodePrimary(p Packet, threshold int) (Encoded, error) {
	var buf bytes.Buffer
	var aux [][]byte

	writeString(&buf, string(p.Type))
	binary.Write(&buf, binary.BigEndian, uint32(len(p.Args)))
	for _, arg := range p.Args {
		if err := encodeValue(&buf, arg, threshold, &aux); err != nil {
			return Encoded{}, fmt.Errorf("encode arg: %w", err)
		}
	}
	return Encoded{Main: buf.Bytes(), Aux: aux}, nil
}

// DecodePrimary decodes a main chunk payload produced by EncodePrimary.
// auxOf resolves placeholder inline ids to their auxiliary chunk bytes,
// already reassembled by the caller (endpoint reader).
func DecodePrimary(main []byte, auxOf func(inlineID uint32) ([]byte, bool)) (Packet, error) {
	r := bytes.NewReader(main)

	typ, err := readString(r)
	if err != nil {
		return Packet{}, fmt.Errorf("read packet type: %w", err)
	}

	var argc uint32
	if err := binary.Read(r, binary.BigEndian, &argc); err != nil {
		return Packet{}, badf("read arg count: %v", err)
	}

	args := make([]Value, 0, argc)
	for i := uint32(0); i < argc; i++ {
		v, err := decodeValue(r, auxOf)
		if err != nil {
			return Packet{}, fmt.Errorf("decode arg %d: %w", i, err)
		}
		args = append(args, v)
	}

	return Packet{Type: PacketType(typ), Args: args}, nil
}

func encodeValue(buf *bytes.Buffer, v Value, threshold int, aux *[][]byte) error {
	switch val := v.(type) {
	case int:
		return encodeInt(buf, int64(val))
	case int32:
		return encodeInt(buf, int64(val))
	case int64:
		return encodeInt(buf, val)
	case uint32:
		return encodeInt(buf, int64(val))
	case uint64:
		return encodeInt(buf, int64(val))
	case bool:
		buf.WriteByte(tagBool)
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case []byte:
		if threshold > 0 && len(val) > threshold {
			id := uint32(len(*aux))
			*aux = append(*aux, val)
			buf.WriteByte(tagPlaceholder)
			binary.Write(buf, binary.BigEndian, placeholder{InlineID: id, Length: uint32(len(val))})
			return nil
		}
		buf.WriteByte(tagBytes)
		binary.Write(buf, binary.BigEndian, uint32(len(val)))
		buf.Write(val)
		return nil
	case string:
		buf.WriteByte(tagString)
		writeString(buf, val)
		return nil
	case []Value:
		buf.WriteByte(tagList)
		binary.Write(buf, binary.BigEndian, uint32(len(val)))
		for _, elem := range val {
			if err := encodeValue(buf, elem, threshold, aux); err != nil {
				return err
			}
		}
		return nil
	case map[string]Value:
		buf.WriteByte(tagMapString)
		binary.Write(buf, binary.BigEndian, uint32(len(val)))
		for k, elem := range val {
			writeString(buf, k)
			if err := encodeValue(buf, elem, threshold, aux); err != nil {
				return err
			}
		}
		return nil
	case map[int]Value:
		buf.WriteByte(tagMapInt)
		binary.Write(buf, binary.BigEndian, uint32(len(val)))
		for k, elem := range val {
			binary.Write(buf, binary.BigEndian, int64(k))
			if err := encodeValue(buf, elem, threshold, aux); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported packet value type %T", v)
	}
}

func encodeInt(buf *bytes.Buffer, v int64) error {
	buf.WriteByte(tagInt)
	return binary.Write(buf, binary.BigEndian, v)
}

func decodeValue(r *bytes.Reader, auxOf func(uint32) ([]byte, bool)) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, badf("read tag: %v", err)
	}
	switch tag {
	case tagInt:
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, badf("read int: %v", err)
		}
		return v, nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, badf("read bool: %v", err)
		}
		return b != 0, nil
	case tagBytes:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, badf("read bytes: %v", err)
		}
		return data, nil
	case tagString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return s, nil
	case tagList:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		list := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := decodeValue(r, auxOf)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case tagMapString:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		m := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return nil, err
			}
			v, err := decodeValue(r, auxOf)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case tagMapInt:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		m := make(map[int]Value, n)
		for i := uint32(0); i < n; i++ {
			var k int64
			if err := binary.Read(r, binary.BigEndian, &k); err != nil {
				return nil, badf("read int map key: %v", err)
			}
			v, err := decodeValue(r, auxOf)
			if err != nil {
				return nil, err
			}
			m[int(k)] = v
		}
		return m, nil
	case tagPlaceholder:
		var ph placeholder
		if err := binary.Read(r, binary.BigEndian, &ph); err != nil {
			return nil, badf("read placeholder: %v", err)
		}
		data, ok := auxOf(ph.InlineID)
		if !ok {
			return nil, badf("unresolved auxiliary placeholder %d", ph.InlineID)
		}
		if uint32(len(data)) != ph.Length {
			return nil, badf("auxiliary placeholder %d length mismatch: want %d got %d", ph.InlineID, ph.Length, len(data))
		}
		return data, nil
	default:
		return nil, badf("unknown value tag 0x%02x", tag)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	data := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return "", badf("read string body: %v", err)
		}
	}
	return string(data), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, badf("read length prefix: %v", err)
	}
	return n, nil
}

// fallbackEnvelope is the JSON shape used by the fallback encoder. The
// endpoint uses it for every packet before it is authenticated (hello,
// challenge, an early disconnect), before the negotiated primary encoder
// is in force (§4.2).
type fallbackEnvelope struct {
	Type PacketType `json:"packet_type"`
	Args []Value    `json:"args"`
}

// EncodeFallback encodes p with the simpler, lower-efficiency fallback
// encoder (plain JSON; no large-binary escape).
func EncodeFallback(p Packet) ([]byte, error) {
	data, err := json.Marshal(fallbackEnvelope{Type: p.Type, Args: p.Args})
	if err != nil {
		return nil, fmt.Errorf("fallback encode: %w", err)
	}
	return data, nil
}

// DecodeFallback decodes a fallback-encoded packet.
func DecodeFallback(data []byte) (Packet, error) {
	var env fallbackEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Packet{}, &BadPacket{Reason: fmt.Sprintf("fallback decode: %v", err)}
	}
	return Packet{Type: env.Type, Args: env.Args}, nil
}
