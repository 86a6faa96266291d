package dtrie

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// On-disk layout (section 3.5 / 6.3): a fixed header, the engine's aux
// tables, then one basic-trie header + state array per embedded basic
// trie. All integers are written host-endian; the reserved padding fields
// are zeroed and exist only so the layout has a documented, fixed size
// instead of leaving "whatever the compiler packed" unspecified.

var (
	twoTrieMagic  = fileMagic("TWO_TRIE")
	tailTrieMagic = fileMagic("TAIL_TRIE")
)

func fileMagic(s string) [16]byte {
	var b [16]byte
	copy(b[:], s)
	return b
}

// twoTrieFileHeader is the fixed-size header written at the start of a
// two-trie file.
type twoTrieFileHeader struct {
	Magic      [16]byte
	IndexSize  int32
	AcceptSize int32
	Reserved   [8]byte
}

// tailTrieFileHeader is the fixed-size header written at the start of a
// tail-trie file.
type tailTrieFileHeader struct {
	Magic      [16]byte
	SuffixSize int32
	Reserved   [12]byte
}

// basicTrieFileHeader precedes each embedded basic trie's state array.
type basicTrieFileHeader struct {
	Size     int32
	LastBase int32
	Reserved [8]byte
}

var nativeEndian = binary.NativeEndian

func writeBasicTrie(w io.Writer, t *basicTrie) error {
	hdr := basicTrieFileHeader{Size: t.usedSize(), LastBase: t.lastBase}
	if err := binary.Write(w, nativeEndian, hdr); err != nil {
		return pkgerrors.Wrap(err, "write trie header")
	}
	if err := binary.Write(w, nativeEndian, t.states[:hdr.Size]); err != nil {
		return pkgerrors.Wrap(err, "write trie states")
	}
	return nil
}

func readBasicTrie(r io.Reader) (*basicTrie, error) {
	var hdr basicTrieFileHeader
	if err := binary.Read(r, nativeEndian, &hdr); err != nil {
		return nil, pkgerrors.Wrap(err, "read trie header")
	}
	states := make([]state, hdr.Size)
	if err := binary.Read(r, nativeEndian, states); err != nil {
		return nil, pkgerrors.Wrap(err, "read trie states")
	}
	t := &basicTrie{states: states, lastBase: hdr.LastBase, maxState: hdr.Size - 1, relocator: noopRelocator{}}
	return t, nil
}

// buildTwoTrie serializes a two-trie engine to path, per the layout in
// 6.3: header, index table, accept table, front-trie header+states,
// rear-trie header+states.
func buildTwoTrie(e *twoTrie, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return pkgerrors.Wrap(err, "open")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	hdr := twoTrieFileHeader{Magic: twoTrieMagic, IndexSize: e.nextIndex, AcceptSize: e.nextAccept}
	if err := binary.Write(w, nativeEndian, hdr); err != nil {
		return pkgerrors.Wrap(err, "write header")
	}
	if err := binary.Write(w, nativeEndian, e.index[:hdr.IndexSize]); err != nil {
		return pkgerrors.Wrap(err, "write index table")
	}
	if err := binary.Write(w, nativeEndian, e.acceptTbl[:hdr.AcceptSize]); err != nil {
		return pkgerrors.Wrap(err, "write accept table")
	}
	if err := writeBasicTrie(w, e.lhs); err != nil {
		return err
	}
	if err := writeBasicTrie(w, e.rhs); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return pkgerrors.Wrap(err, "flush")
	}
	if err := f.Sync(); err != nil {
		return pkgerrors.Wrap(err, "fsync")
	}
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"index":  hdr.IndexSize,
		"accept": hdr.AcceptSize,
		"lhs":    e.lhs.usedSize(),
		"rhs":    e.rhs.usedSize(),
	}).Debug("two-trie engine persisted")
	return nil
}

// loadTwoTrie reads a two-trie file written by buildTwoTrie, in full (not
// memory-mapped); used as the fallback path when the caller asks for a
// mutable engine back.
func loadTwoTrie(path string) (*twoTrie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open")
	}
	defer f.Close()
	return loadTwoTrieFromReader(bufio.NewReader(f))
}

// rebuildRefer reconstructs the refer map from the index/accept tables
// after a load, since the map itself (unlike the tables) is never written
// to disk. It's a pure derived index over accept/referer relationships.
func (e *twoTrie) rebuildRefer() {
	for s := int32(1); s <= e.lhs.maxState; s++ {
		if e.lhs.base(s) >= 0 {
			continue
		}
		idx := -e.lhs.base(s)
		if int(idx) >= len(e.index) || e.index[idx].IndexRef == 0 {
			continue
		}
		a := e.index[idx].IndexRef
		u := e.acceptTbl[a].Accept
		re, ok := e.refer[u]
		if !ok {
			re = &referEntry{AcceptIndex: a, referer: make(map[int32]struct{})}
			e.refer[u] = re
		}
		re.referer[s] = struct{}{}
	}
}

// buildTailTrie serializes a tail-trie engine to path: header, suffix
// array, trie header+states.
func buildTailTrie(t *tailTrie, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return pkgerrors.Wrap(err, "open")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	hdr := tailTrieFileHeader{Magic: tailTrieMagic, SuffixSize: t.nextSuffix}
	if err := binary.Write(w, nativeEndian, hdr); err != nil {
		return pkgerrors.Wrap(err, "write header")
	}
	if err := binary.Write(w, nativeEndian, t.suffix[:hdr.SuffixSize]); err != nil {
		return pkgerrors.Wrap(err, "write suffix array")
	}
	if err := writeBasicTrie(w, t.trie); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return pkgerrors.Wrap(err, "flush")
	}
	if err := f.Sync(); err != nil {
		return pkgerrors.Wrap(err, "fsync")
	}
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"suffix": hdr.SuffixSize,
		"trie":   t.trie.usedSize(),
	}).Debug("tail-trie engine persisted")
	return nil
}

func loadTailTrie(path string) (*tailTrie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open")
	}
	defer f.Close()
	return loadTailTrieFromReader(bufio.NewReader(f))
}

// mappedFile is a read-only memory-mapped backing file, released by
// Close. Engines loaded this way decode their tables and state arrays out
// of the mapping into heap slices; they do not alias the mapping.
type mappedFile struct {
	data []byte
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "stat")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mmap")
	}
	return &mappedFile{data: data}, nil
}

func (m *mappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return pkgerrors.Wrap(err, "munmap")
	}
	return nil
}

// mmapTwoTrie loads a two-trie file read-only by memory mapping it and
// decoding the tables out of the mapping; the index/accept tables and both
// state arrays are copied into heap slices by binary.Read.
func mmapTwoTrie(path string) (*twoTrie, *mappedFile, error) {
	m, err := mapFile(path)
	if err != nil {
		return nil, nil, err
	}
	e, err := decodeTwoTrie(m.data)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return e, m, nil
}

func mmapTailTrie(path string) (*tailTrie, *mappedFile, error) {
	m, err := mapFile(path)
	if err != nil {
		return nil, nil, err
	}
	t, err := decodeTailTrie(m.data)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return t, m, nil
}

func decodeTwoTrie(data []byte) (*twoTrie, error) {
	r := newByteReader(data)
	return loadTwoTrieFromReader(r)
}

func decodeTailTrie(data []byte) (*tailTrie, error) {
	r := newByteReader(data)
	return loadTailTrieFromReader(r)
}

// byteReader is a tiny io.Reader over an in-memory mapping, letting the
// same binary.Read-based decoding logic serve both the buffered-file load
// path and the memory-mapped path.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func loadTwoTrieFromReader(r io.Reader) (*twoTrie, error) {
	var hdr twoTrieFileHeader
	if err := binary.Read(r, nativeEndian, &hdr); err != nil {
		return nil, pkgerrors.Wrap(err, "read header")
	}
	if hdr.Magic != twoTrieMagic {
		return nil, ErrFileCorrupted
	}
	e := &twoTrie{refer: make(map[int32]*referEntry), nextIndex: hdr.IndexSize, nextAccept: hdr.AcceptSize}
	e.index = make([]indexEntry, hdr.IndexSize)
	if err := binary.Read(r, nativeEndian, e.index); err != nil {
		return nil, pkgerrors.Wrap(err, "read index table")
	}
	e.acceptTbl = make([]acceptEntry, hdr.AcceptSize)
	if err := binary.Read(r, nativeEndian, e.acceptTbl); err != nil {
		return nil, pkgerrors.Wrap(err, "read accept table")
	}
	var err error
	if e.lhs, err = readBasicTrie(r); err != nil {
		return nil, err
	}
	if e.rhs, err = readBasicTrie(r); err != nil {
		return nil, err
	}
	e.lhs.setRelocator(relocatorFunc(e.relocateFront))
	e.rhs.setRelocator(relocatorFunc(e.relocateRear))
	e.rebuildRefer()
	return e, nil
}

func loadTailTrieFromReader(r io.Reader) (*tailTrie, error) {
	var hdr tailTrieFileHeader
	if err := binary.Read(r, nativeEndian, &hdr); err != nil {
		return nil, pkgerrors.Wrap(err, "read header")
	}
	if hdr.Magic != tailTrieMagic {
		return nil, ErrFileCorrupted
	}
	t := &tailTrie{nextSuffix: hdr.SuffixSize}
	t.suffix = make([]int64, hdr.SuffixSize)
	if err := binary.Read(r, nativeEndian, t.suffix); err != nil {
		return nil, pkgerrors.Wrap(err, "read suffix array")
	}
	var err error
	if t.trie, err = readBasicTrie(r); err != nil {
		return nil, err
	}
	return t, nil
}
