package nodelist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// indexMagic tags the compiled binary index format.
const indexMagic = uint32(0x4e4c4958) // "NLIX"

// entryRecordSize is the fixed on-disk size of one compiled record:
// magic-free fields only — zone,net,node,point (int32 x4), baud (int32),
// keyword (int32), ibnPort (int32), flag bitmask (int32), hub node
// (int32), followed by 5 fixed-width string blocks
// (name,loc,sysop,phone,ibnHost) of nameFieldLen bytes each, NUL-padded.
const nameFieldLen = 48

const intFieldCount = 9
const entryRecordSize = 4*intFieldCount + 5*nameFieldLen

const (
	flagCM  = 1 << 0
	flagMO  = 1 << 1
	flagIBN = 1 << 2
	flagITN = 1 << 3
	flagLO  = 1 << 4
)

func flagBits(e *Entry) int32 {
	var b int32
	if e.HasFlag("CM") {
		b |= flagCM
	}
	if e.HasFlag("MO") {
		b |= flagMO
	}
	if e.HasFlag("IBN") {
		b |= flagIBN
	}
	if e.HasFlag("ITN") {
		b |= flagITN
	}
	if e.HasFlag("LO") {
		b |= flagLO
	}
	return b
}

func putFixed(buf []byte, s string) {
	for i := range buf {
		buf[i] = 0
	}
	copy(buf, s)
}

func getFixed(buf []byte) string {
	n := bytes.IndexByte(buf, 0)
	if n < 0 {
		n = len(buf)
	}
	return string(buf[:n])
}

// Compile sorts entries by (zone,net,node,point) and writes the binary
// index: a header with the record count, followed by fixed-size records
// (spec §4.11: "emit a binary index per network consisting of a header
// (record count) followed by fixed-size entries ordered by
// (zone,net,node,point)").
func Compile(w io.Writer, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		if a.Net != b.Net {
			return a.Net < b.Net
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Point < b.Point
	})

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, indexMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(sorted))); err != nil {
		return err
	}

	const intBlockLen = 4 * intFieldCount
	rec := make([]byte, entryRecordSize)
	for _, e := range sorted {
		putInt32s(rec[:intBlockLen], int32(e.Zone), int32(e.Net), int32(e.Node), int32(e.Point),
			int32(e.Baud), int32(e.Keyword), int32(e.IBNPort), flagBits(&e), int32(e.HubNode))
		off := intBlockLen
		for _, s := range []string{e.Name, e.Loc, e.Sysop, e.Phone, e.IBNHost} {
			putFixed(rec[off:off+nameFieldLen], s)
			off += nameFieldLen
		}
		if _, err := bw.Write(rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func putInt32s(buf []byte, vals ...int32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
}

func getInt32s(buf []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// Index is a compiled nodelist backed by a binary file, with a bounded
// LRU front-cache (spec §4.11).
type Index struct {
	path  string
	count int
	cache *lru
}

// OpenIndex opens a compiled index file for lookup without loading it
// entirely into memory; each Lookup seeks and reads one record.
func OpenIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic, count uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("nodelist: %s: bad index magic", path)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	return &Index{path: path, count: int(count), cache: newLRU(64)}, nil
}

// Count returns the number of entries in the index.
func (idx *Index) Count() int { return idx.count }

// Lookup binary-searches the index for (zone,net,node,point), consulting
// the 64-entry LRU cache first (spec §4.11: "Lookup uses binary search;
// an in-memory 64-entry LRU cache keyed by the full 4-tuple fronts the
// file").
func (idx *Index) Lookup(zone, net, node, point int) (*Entry, bool) {
	key := lruKey{zone, net, node, point}
	if e, ok := idx.cache.get(key); ok {
		return e, true
	}

	f, err := os.Open(idx.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	lo, hi := 0, idx.count-1
	rec := make([]byte, entryRecordSize)
	for lo <= hi {
		mid := (lo + hi) / 2
		if _, err := f.Seek(8+int64(mid)*entryRecordSize, io.SeekStart); err != nil {
			return nil, false
		}
		if _, err := io.ReadFull(f, rec); err != nil {
			return nil, false
		}
		fields := getInt32s(rec[:4*intFieldCount], intFieldCount)
		z, n, nd, pt := int(fields[0]), int(fields[1]), int(fields[2]), int(fields[3])

		switch {
		case less4(z, n, nd, pt, zone, net, node, point):
			lo = mid + 1
		case less4(zone, net, node, point, z, n, nd, pt):
			hi = mid - 1
		default:
			e := decodeRecord(rec, fields)
			idx.cache.put(key, &e)
			return &e, true
		}
	}
	return nil, false
}

func less4(z1, n1, nd1, p1, z2, n2, nd2, p2 int) bool {
	if z1 != z2 {
		return z1 < z2
	}
	if n1 != n2 {
		return n1 < n2
	}
	if nd1 != nd2 {
		return nd1 < nd2
	}
	return p1 < p2
}

func decodeRecord(rec []byte, fields []int32) Entry {
	e := Entry{
		Zone: int(fields[0]), Net: int(fields[1]), Node: int(fields[2]), Point: int(fields[3]),
		Baud: int(fields[4]), Keyword: Keyword(fields[5]), IBNPort: int(fields[6]),
		HubNode: int(fields[8]),
	}
	bits := fields[7]
	if bits&flagCM != 0 {
		e.Flags = append(e.Flags, "CM")
	}
	if bits&flagMO != 0 {
		e.Flags = append(e.Flags, "MO")
	}
	if bits&flagLO != 0 {
		e.Flags = append(e.Flags, "LO")
	}
	if bits&flagITN != 0 {
		e.Flags = append(e.Flags, "ITN")
	}
	off := 4 * intFieldCount
	e.Name = getFixed(rec[off : off+nameFieldLen])
	off += nameFieldLen
	e.Loc = getFixed(rec[off : off+nameFieldLen])
	off += nameFieldLen
	e.Sysop = getFixed(rec[off : off+nameFieldLen])
	off += nameFieldLen
	e.Phone = getFixed(rec[off : off+nameFieldLen])
	off += nameFieldLen
	e.IBNHost = getFixed(rec[off : off+nameFieldLen])
	if bits&flagIBN != 0 {
		e.Flags = append(e.Flags, "IBN")
	}
	return e
}
