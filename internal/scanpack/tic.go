package scanpack

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"
)

// TIC is a parsed file-announcement (spec §4.9 "TIC").
type TIC struct {
	File    string
	Area    string
	Desc    string
	Size    int64
	CRC     uint32
	Origin  string
	From    string
	To      string
	SeenBy  []string
	Path    []string
}

// ParseTIC parses a TIC file's contents.
func ParseTIC(r io.Reader) (*TIC, error) {
	t := &TIC{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		field, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		switch strings.ToUpper(field) {
		case "FILE":
			t.File = rest
		case "AREA":
			t.Area = rest
		case "DESC":
			t.Desc = rest
		case "SIZE":
			n, err := strconv.ParseInt(rest, 10, 64)
			if err == nil {
				t.Size = n
			}
		case "CRC":
			n, err := strconv.ParseUint(rest, 16, 32)
			if err == nil {
				t.CRC = uint32(n)
			}
		case "ORIGIN":
			t.Origin = rest
		case "FROM":
			t.From = rest
		case "TO":
			t.To = rest
		case "SEENBY":
			t.SeenBy = append(t.SeenBy, rest)
		case "PATH":
			t.Path = append(t.Path, rest)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if t.File == "" || t.Area == "" {
		return nil, fmt.Errorf("scanpack: TIC missing FILE or AREA")
	}
	return t, nil
}

// VerifyCRC checks the TIC's declared CRC-32 against the companion
// file's actual contents (spec §4.9: "The CRC-32 is verified against
// the companion file").
func VerifyCRC(t *TIC, companionPath string) error {
	f, err := os.Open(companionPath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if h.Sum32() != t.CRC {
		return fmt.Errorf("scanpack: TIC CRC mismatch for %s: got %08x, want %08x", t.File, h.Sum32(), t.CRC)
	}
	return nil
}

// FormatTIC renders a TIC for forwarding to another destination, with
// the local AKA prepended to PATH and appended to SEENBY (spec §4.9
// "TIC": "a fresh TIC is written to each outbound destination with the
// local AKA prepended to PATH and appended to SEENBY").
func FormatTIC(t *TIC, localAKA string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Area %s\n", t.Area)
	fmt.Fprintf(&b, "File %s\n", t.File)
	fmt.Fprintf(&b, "Desc %s\n", t.Desc)
	fmt.Fprintf(&b, "Size %d\n", t.Size)
	fmt.Fprintf(&b, "Crc %08X\n", t.CRC)
	if t.Origin != "" {
		fmt.Fprintf(&b, "Origin %s\n", t.Origin)
	}
	fmt.Fprintf(&b, "From %s\n", t.From)
	fmt.Fprintf(&b, "To %s\n", t.To)

	path := append([]string{localAKA}, t.Path...)
	fmt.Fprintf(&b, "Path %s\n", strings.Join(path, " "))

	seenBy := append(append([]string(nil), t.SeenBy...), localAKA)
	fmt.Fprintf(&b, "Seenby %s\n", strings.Join(seenBy, " "))
	return b.String()
}
