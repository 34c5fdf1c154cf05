package transfer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// ZMODEM frame types (spec §4.5.3).
const (
	ZRQINIT byte = 0
	ZRINIT  byte = 1
	ZSINIT  byte = 2
	ZACK    byte = 3
	ZFILE   byte = 4
	ZSKIP   byte = 5
	ZNAK    byte = 6
	ZABORT  byte = 7
	ZFIN    byte = 8
	ZRPOS   byte = 9
	ZDATA   byte = 10
	ZEOF    byte = 11
	ZFERR   byte = 12
	ZCRC    byte = 13
	ZCOMPL  byte = 15
	ZCAN    byte = 16
)

// Subpacket terminators.
const (
	ZCRCE byte = 'h'
	ZCRCG byte = 'i'
	ZCRCQ byte = 'j'
	ZCRCW byte = 'k'
)

const (
	zdle  byte = 0x18
	zpad  byte = '*'
	zbin  byte = 'A'
	zhex  byte = 'B'
	zbin32 byte = 'C'
)

// Capability flags sent in ZRINIT (spec §4.5.3 receive flow).
const (
	CANFDX  = 0x01
	CANOVIO = 0x02
	CANFC32 = 0x20
)

const zmodemMaxSubpacket = 1024

var (
	headerTimeout     = 10 * time.Second
	subpacketTimeout  = 15 * time.Second
)

// ZmodemHeader is one ZMODEM header frame: a type byte plus four data
// bytes whose meaning depends on the type (position, flags, etc).
type ZmodemHeader struct {
	Type byte
	Data [4]byte
}

// Position returns Data interpreted as a little-endian file position/size,
// the convention ZRPOS, ZEOF and ZFILE's trailing fields use.
func (h ZmodemHeader) Position() uint32 {
	return binary.LittleEndian.Uint32(h.Data[:])
}

func positionHeader(typ byte, pos uint32) ZmodemHeader {
	var h ZmodemHeader
	h.Type = typ
	binary.LittleEndian.PutUint32(h.Data[:], pos)
	return h
}

// zmodemEscape ZDLE-escapes b if it is ZDLE itself, XON/XOFF (0x11/0x13),
// their high-bit variants (0x91/0x93), or — when escCtl is set — any byte
// below 0x20. Returns the bytes to emit.
func zmodemEscape(b byte, escCtl bool) []byte {
	switch b {
	case zdle, 0x11, 0x13, 0x91, 0x93:
		return []byte{zdle, b ^ 0x40}
	}
	if escCtl && b < 0x20 {
		return []byte{zdle, b ^ 0x40}
	}
	return []byte{b}
}

func zmodemEscapeAll(data []byte, escCtl bool) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, b := range data {
		out = append(out, zmodemEscape(b, escCtl)...)
	}
	return out
}

// EncodeHexHeader renders the negotiation-phase header shape: ZPAD ZPAD
// ZDLE 'B', the type byte and four header bytes in ASCII hex, ASCII-hex
// CRC-16, CR LF.
func EncodeHexHeader(h ZmodemHeader) []byte {
	plain := append([]byte{h.Type}, h.Data[:]...)
	crc := CRC16CCITT(plain)
	hexed := make([]byte, 0, 32)
	hexed = append(hexed, zpad, zpad, zdle, zhex)
	hexed = append(hexed, []byte(hex.EncodeToString(plain))...)
	var crcBytes [2]byte
	binary.BigEndian.PutUint16(crcBytes[:], crc)
	hexed = append(hexed, []byte(hex.EncodeToString(crcBytes[:]))...)
	hexed = append(hexed, '\r', '\n')
	return hexed
}

// DecodeHexHeader parses a hex header body (after the ZPAD ZPAD ZDLE 'B'
// prefix has been consumed by the caller): 10 hex digits of header (type
// plus four bytes) plus 4 hex digits of CRC-16, CR LF.
func DecodeHexHeader(body []byte) (ZmodemHeader, error) {
	if len(body) < 14 {
		return ZmodemHeader{}, fmt.Errorf("zmodem: short hex header")
	}
	raw, err := hex.DecodeString(string(body[:10]))
	if err != nil || len(raw) != 5 {
		return ZmodemHeader{}, fmt.Errorf("zmodem: malformed hex header: %w", err)
	}
	crcRaw, err := hex.DecodeString(string(body[10:14]))
	if err != nil || len(crcRaw) != 2 {
		return ZmodemHeader{}, fmt.Errorf("zmodem: malformed hex header CRC: %w", err)
	}
	plain := raw
	got := binary.BigEndian.Uint16(crcRaw)
	want := CRC16CCITT(plain)
	if got != want {
		return ZmodemHeader{}, fmt.Errorf("zmodem: hex header CRC mismatch")
	}
	var h ZmodemHeader
	h.Type = plain[0]
	copy(h.Data[:], plain[1:])
	return h, nil
}

// EncodeBinary32Header renders the binary32 header shape: ZPAD ZDLE 'C',
// five data bytes (type + 4) and a little-endian 32-bit CRC, all subject
// to ZDLE escaping.
func EncodeBinary32Header(h ZmodemHeader, escCtl bool) []byte {
	plain := append([]byte{h.Type}, h.Data[:]...)
	crc := CRC32ZModem(plain)
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], crc)
	plain = append(plain, crcBytes[:]...)

	out := make([]byte, 0, len(plain)*2+4)
	out = append(out, zpad, zdle, zbin32)
	out = append(out, zmodemEscapeAll(plain, escCtl)...)
	return out
}

// EncodeDataSubpacket frames one ZMODEM data subpacket of up to 1024
// bytes: escaped payload, then ZDLE+terminator (ZCRCG/ZCRCE/ZCRCQ/ZCRCW),
// then an escaped little-endian CRC-32 computed over payload+terminator.
func EncodeDataSubpacket(payload []byte, term byte, escCtl bool) ([]byte, error) {
	if len(payload) > zmodemMaxSubpacket {
		return nil, fmt.Errorf("zmodem: subpacket exceeds %d bytes", zmodemMaxSubpacket)
	}
	plain := append(append([]byte{}, payload...), term)
	crc := CRC32ZModem(plain)
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], crc)

	out := make([]byte, 0, len(payload)*2+12)
	out = append(out, zmodemEscapeAll(payload, escCtl)...)
	out = append(out, zdle, term)
	out = append(out, zmodemEscapeAll(crcBytes[:], escCtl)...)
	return out, nil
}

// ZmodemSendFile implements the sender flow of spec §4.5.3: ZRQINIT, wait
// ZRINIT, ZFILE(name,size) as a ZCRCW subpacket, then on each ZRPOS(n) seek
// and stream ZDATA(n) subpackets (ZCRCG until the last, ZCRCE to end),
// ZEOF(final), wait for the receiver's readiness, ZFIN, "OO", close.
func ZmodemSendFile(t *ZmodemTransport, name string, size int64, r io.ReaderAt) error {
	if err := t.sendHexHeader(ZmodemHeader{Type: ZRQINIT}); err != nil {
		return err
	}
	if _, err := t.waitHeader(ZRINIT, headerTimeout); err != nil {
		return err
	}

	fileInfo := []byte(fmt.Sprintf("%s\x00%d", name, size))
	sub, err := EncodeDataSubpacket(fileInfo, ZCRCW, t.EscCtl)
	if err != nil {
		return err
	}
	if err := t.sendHexHeader(ZmodemHeader{Type: ZFILE}); err != nil {
		return err
	}
	if err := t.write(sub); err != nil {
		return err
	}

	pos, err := t.waitPositionHeader(ZRPOS, headerTimeout)
	if err != nil {
		return err
	}

	if err := t.sendBinary32Header(positionHeader(ZDATA, pos)); err != nil {
		return err
	}

	buf := make([]byte, zmodemMaxSubpacket)
	off := int64(pos)
	for {
		n, rerr := r.ReadAt(buf, off)
		if n > 0 {
			term := ZCRCG
			last := int64(n) < zmodemMaxSubpacket || rerr == io.EOF
			if last {
				term = ZCRCE
			}
			sub, err := EncodeDataSubpacket(buf[:n], term, t.EscCtl)
			if err != nil {
				return err
			}
			if err := t.write(sub); err != nil {
				return err
			}
			off += int64(n)
		}
		if rerr != nil {
			break
		}
	}

	if err := t.sendBinary32Header(positionHeader(ZEOF, uint32(off))); err != nil {
		return err
	}
	if _, err := t.waitHeader(ZRINIT, headerTimeout); err != nil {
		return err
	}
	if err := t.sendHexHeader(ZmodemHeader{Type: ZFIN}); err != nil {
		return err
	}
	if _, err := t.waitHeader(ZFIN, headerTimeout); err != nil {
		return err
	}
	return t.write([]byte("OO"))
}

// ZmodemReceiveFile implements the receiver flow: reply ZRINIT on
// ZRQINIT, read ZFILE, reply ZRPOS (resumePos lets the caller request
// resumption of a partially-present file), accept ZDATA and its
// subpackets, ZRINIT on ZEOF, then wait for the sender's ZFIN before
// replying with our own.
func ZmodemReceiveFile(t *ZmodemTransport, w io.WriterAt, resumePos uint32) (name string, size int64, err error) {
	if _, err := t.waitHeader(ZRQINIT, headerTimeout); err != nil {
		return "", 0, err
	}
	if err := t.sendBinary32Header(ZmodemHeader{Type: ZRINIT, Data: [4]byte{CANFDX | CANOVIO | CANFC32, 0, 0, 0}}); err != nil {
		return "", 0, err
	}

	if _, err := t.waitHeader(ZFILE, headerTimeout); err != nil {
		return "", 0, err
	}
	payload, err := t.readSubpacket(subpacketTimeout)
	if err != nil {
		return "", 0, err
	}
	name, size = parseZFilePayload(payload)

	if err := t.sendBinary32Header(positionHeader(ZRPOS, resumePos)); err != nil {
		return "", 0, err
	}

	if _, err := t.waitHeader(ZDATA, headerTimeout); err != nil {
		return "", 0, err
	}
	off := int64(resumePos)
	for {
		data, term, err := t.readSubpacketWithTerm(subpacketTimeout)
		if err != nil {
			return name, size, err
		}
		if len(data) > 0 {
			if _, err := w.WriteAt(data, off); err != nil {
				return name, size, err
			}
			off += int64(len(data))
		}
		if term == ZCRCE {
			break
		}
	}

	if _, err := t.waitPositionHeader(ZEOF, headerTimeout); err != nil {
		return name, size, err
	}
	if err := t.sendBinary32Header(ZmodemHeader{Type: ZRINIT, Data: [4]byte{CANFDX | CANOVIO | CANFC32, 0, 0, 0}}); err != nil {
		return name, size, err
	}
	if _, err := t.waitHeader(ZFIN, headerTimeout); err != nil {
		return name, size, err
	}
	return name, size, t.sendHexHeader(ZmodemHeader{Type: ZFIN})
}

func parseZFilePayload(payload []byte) (string, int64) {
	nul := len(payload)
	for i, b := range payload {
		if b == 0 {
			nul = i
			break
		}
	}
	name := string(payload[:nul])
	var size int64
	if nul+1 < len(payload) {
		fmt.Sscanf(string(payload[nul+1:]), "%d", &size)
	}
	return name, size
}
