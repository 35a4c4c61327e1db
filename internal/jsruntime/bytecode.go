package jsruntime

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Bytecode envelope layout (big endian):
//
//	magic "KBC1" | format u16 | type len u8 | type | build len u8 | build | payload len u32 | xxhash64 u64 | payload
//
// Native engine bytecode carries no build identity of its own, so every
// payload is wrapped before it leaves the session and checked before it is
// handed back to an engine.
var bytecodeMagic = []byte("KBC1")

const bytecodeFormat uint16 = 1

// BytecodeHeader describes an envelope without its payload.
type BytecodeHeader struct {
	Format  uint16
	Runtime RuntimeType
	BuildID string
	Length  uint32
	Sum     uint64
}

func encodeBytecode(t RuntimeType, buildID string, payload []byte) ([]byte, error) {
	if len(t) > 255 || len(buildID) > 255 {
		return nil, fmt.Errorf("engine identity too long")
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("bytecode payload too large: %d bytes", len(payload))
	}
	var buf bytes.Buffer
	buf.Grow(len(bytecodeMagic) + 2 + 2 + len(t) + len(buildID) + 12 + len(payload))
	buf.Write(bytecodeMagic)
	_ = binary.Write(&buf, binary.BigEndian, bytecodeFormat)
	buf.WriteByte(byte(len(t)))
	buf.WriteString(string(t))
	buf.WriteByte(byte(len(buildID)))
	buf.WriteString(buildID)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	_ = binary.Write(&buf, binary.BigEndian, xxhash.Sum64(payload))
	buf.Write(payload)
	return buf.Bytes(), nil
}

// ReadBytecodeHeader parses the envelope header and returns it with the
// payload. It checks structure and checksum but not engine compatibility.
func ReadBytecodeHeader(code []byte) (BytecodeHeader, []byte, error) {
	var h BytecodeHeader
	r := bytes.NewReader(code)

	magic := make([]byte, len(bytecodeMagic))
	if _, err := r.Read(magic); err != nil || !bytes.Equal(magic, bytecodeMagic) {
		return h, nil, fmt.Errorf("missing bytecode header")
	}
	if err := binary.Read(r, binary.BigEndian, &h.Format); err != nil {
		return h, nil, fmt.Errorf("truncated bytecode header")
	}
	if h.Format != bytecodeFormat {
		return h, nil, fmt.Errorf("unsupported bytecode format %d", h.Format)
	}
	runtimeName, err := readShortString(r)
	if err != nil {
		return h, nil, err
	}
	h.Runtime = RuntimeType(runtimeName)
	if h.BuildID, err = readShortString(r); err != nil {
		return h, nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Length); err != nil {
		return h, nil, fmt.Errorf("truncated bytecode header")
	}
	if err := binary.Read(r, binary.BigEndian, &h.Sum); err != nil {
		return h, nil, fmt.Errorf("truncated bytecode header")
	}
	if uint64(r.Len()) != uint64(h.Length) {
		return h, nil, fmt.Errorf("bytecode payload length %d, header says %d", r.Len(), h.Length)
	}
	payload := code[len(code)-r.Len():]
	if xxhash.Sum64(payload) != h.Sum {
		return h, nil, fmt.Errorf("bytecode checksum mismatch")
	}
	return h, payload, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("truncated bytecode header")
	}
	b := make([]byte, n)
	if n > 0 {
		if m, err := r.Read(b); err != nil || m != int(n) {
			return "", fmt.Errorf("truncated bytecode header")
		}
	}
	return string(b), nil
}
