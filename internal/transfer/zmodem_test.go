package transfer

import (
	"bytes"
	"testing"
	"time"
)

func TestHexHeaderRoundTrip(t *testing.T) {
	h := ZmodemHeader{Type: ZFILE, Data: [4]byte{1, 2, 3, 4}}
	encoded := EncodeHexHeader(h)
	// Body starts after "ZPAD ZPAD ZDLE 'B'" (4 bytes).
	body := encoded[4:]
	got, err := DecodeHexHeader(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestHexHeaderRejectsCorruptCRC(t *testing.T) {
	h := ZmodemHeader{Type: ZRINIT}
	encoded := EncodeHexHeader(h)
	body := append([]byte{}, encoded[4:]...)
	body[0] ^= 0xFF // corrupt a header hex digit without touching the CRC
	if _, err := DecodeHexHeader(body); err == nil {
		t.Fatalf("expected CRC mismatch error")
	}
}

func TestZmodemEscapeCoversReservedBytes(t *testing.T) {
	reserved := []byte{zdle, 0x11, 0x13, 0x91, 0x93}
	for _, b := range reserved {
		out := zmodemEscape(b, false)
		if len(out) != 2 || out[0] != zdle || out[1] != b^0x40 {
			t.Fatalf("byte %#x not escaped: % x", b, out)
		}
	}
	if out := zmodemEscape(0x41, false); len(out) != 1 || out[0] != 0x41 {
		t.Fatalf("ordinary byte was escaped: % x", out)
	}
}

func TestZmodemEscapeCtlEscapesLowBytes(t *testing.T) {
	out := zmodemEscape(0x05, true)
	if len(out) != 2 || out[0] != zdle {
		t.Fatalf("escCtl should escape control byte 0x05: % x", out)
	}
	out = zmodemEscape(0x05, false)
	if len(out) != 1 {
		t.Fatalf("without escCtl, 0x05 should pass through unescaped: % x", out)
	}
}

func TestDataSubpacketRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, zdle, 0xFF, 0x11, 'a', 'b', 'c'}
	encoded, err := EncodeDataSubpacket(payload, ZCRCE, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	link := &memLink{buf: encoded}
	tr := &ZmodemTransport{Src: link, Dst: link}
	got, term, err := tr.readSubpacketWithTerm(time.Second)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if term != ZCRCE {
		t.Fatalf("term = %q, want ZCRCE", term)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = % x, want % x", got, payload)
	}
}

func TestBinary32HeaderRoundTrip(t *testing.T) {
	h := positionHeader(ZRPOS, 12345)
	encoded := EncodeBinary32Header(h, false)

	link := &memLink{buf: encoded}
	tr := &ZmodemTransport{Src: link, Dst: link}
	got, err := tr.waitHeader(ZRPOS, time.Second)
	if err != nil {
		t.Fatalf("waitHeader: %v", err)
	}
	if got.Position() != 12345 {
		t.Fatalf("position = %d, want 12345", got.Position())
	}
}
