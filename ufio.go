// ufio.go -- union-find persistence: JSON and binary table formats

package dedup

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dchest/siphash"
)

// The JSON form is the interchange format:
//
//	{"parent": {"<id>": <parent_id>, ...}}
//
// with ids as decimal strings and parents as unsigned integers. Load also
// tolerates parents encoded as strings.
//
// The binary form is the compact format for large corpora:
//   - 32 byte header:
//     magic   [4]byte "UFDB"
//     version byte    1
//     resv    [3]byte
//     nkeys   uint64  big-endian
//     salt    [16]byte  random siphash key
//   - nkeys records of (id, parent), little-endian uint64 pairs, sorted
//     ascending by id
//   - 8 byte big-endian siphash-2-4 of header+records, keyed by the salt
const (
	ufMagic      = "UFDB"
	ufVersion    = 1
	ufHeaderSize = 4 + 1 + 3 + 8 + 16
)

// Dump persists the union-find to path: JSON when the path ends in
// ".json", the binary table format otherwise. The write goes through a
// temp file renamed into place so readers never observe a partial dump.
func (u *UnionFind) Dump(path string) error {
	var buf bytes.Buffer
	var err error

	if strings.HasSuffix(path, ".json") {
		err = u.writeJSON(&buf)
	} else {
		err = u.writeBinary(&buf)
	}
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, rand32())
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a dump produced by Dump, sniffing the format from the
// leading bytes.
func Load(path string) (*UnionFind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) >= 4 && string(data[:4]) == ufMagic {
		return readBinary(path, data)
	}
	return readJSON(path, data)
}

func (u *UnionFind) writeJSON(w io.Writer) error {
	parent := make(map[string]uint64, len(u.parent))
	for id, p := range u.parent {
		parent[strconv.FormatUint(id, 10)] = p
	}

	enc := json.NewEncoder(w)
	return enc.Encode(struct {
		Parent map[string]uint64 `json:"parent"`
	}{Parent: parent})
}

func readJSON(fn string, data []byte) (*UnionFind, error) {
	var raw struct {
		Parent map[string]any `json:"parent"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if raw.Parent == nil {
		return nil, fmt.Errorf("%s: missing parent map", fn)
	}

	u := NewUnionFind()
	for k, v := range raw.Parent {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad id %q: %w", fn, k, err)
		}

		var p uint64
		switch t := v.(type) {
		case json.Number:
			p, err = strconv.ParseUint(t.String(), 10, 64)
		case string:
			p, err = strconv.ParseUint(t, 10, 64)
		default:
			err = fmt.Errorf("unsupported parent type %T", v)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: bad parent for id %d: %w", fn, id, err)
		}

		u.parent[id] = p
		u.rank[id] = 1
	}
	return u, nil
}

func (u *UnionFind) writeBinary(w io.Writer) error {
	var hdr [ufHeaderSize]byte

	copy(hdr[:4], ufMagic)
	hdr[4] = ufVersion
	binary.BigEndian.PutUint64(hdr[8:], uint64(len(u.parent)))

	salt := randbytes(16)
	copy(hdr[16:], salt)

	h := siphash.New(salt)
	tee := io.MultiWriter(w, h)

	if err := writeAll(tee, hdr[:]); err != nil {
		return err
	}

	var rec [16]byte
	le := binary.LittleEndian
	writeRec := func(id, p uint64) error {
		le.PutUint64(rec[:8], id)
		le.PutUint64(rec[8:], p)
		return writeAll(tee, rec[:])
	}

	var werr error
	u.Iter(func(id, _ uint64) bool {
		werr = writeRec(id, u.parent[id])
		return werr == nil
	})
	if werr != nil {
		return werr
	}

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return writeAll(w, sum[:])
}

func readBinary(fn string, data []byte) (*UnionFind, error) {
	if len(data) < ufHeaderSize+8 {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}
	if data[4] != ufVersion {
		return nil, fmt.Errorf("%s: no support to read version %d", fn, data[4])
	}

	nkeys := binary.BigEndian.Uint64(data[8:16])
	salt := data[16:32]

	body := data[:len(data)-8]
	if uint64(len(body)-ufHeaderSize) != nkeys*16 {
		return nil, fmt.Errorf("%s: truncated record table (have %d keys, want %d)",
			fn, (len(body)-ufHeaderSize)/16, nkeys)
	}

	h := siphash.New(salt)
	h.Write(body)
	want := binary.BigEndian.Uint64(data[len(data)-8:])
	if got := h.Sum64(); got != want {
		return nil, fmt.Errorf("%s: checksum mismatch (%#x, want %#x)", fn, got, want)
	}

	u := &UnionFind{
		parent: make(map[uint64]uint64, nkeys),
		rank:   make(map[uint64]uint32, nkeys),
	}
	le := binary.LittleEndian
	for off := ufHeaderSize; off < len(body); off += 16 {
		id := le.Uint64(body[off:])
		u.parent[id] = le.Uint64(body[off+8:])
		u.rank[id] = 1
	}
	return u, nil
}

// writeAll writes the whole of b or fails.
func writeAll(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("incomplete write; exp %d, saw %d", len(b), n)
	}
	return nil
}
