package dtrie

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kind selects which engine variant New builds (section 6.1).
type Kind int

const (
	// DoubleTrie builds a two-trie engine: a forward front trie plus a
	// reverse rear trie sharing tails across keys. Better space efficiency
	// when many keys share suffixes.
	DoubleTrie Kind = iota
	// SingleTrie builds a tail-trie engine: one forward trie with a flat
	// suffix array holding each key's unique remaining tail verbatim.
	// Simpler, and often faster to insert into.
	SingleTrie
)

func (k Kind) String() string {
	switch k {
	case DoubleTrie:
		return "DOUBLE_TRIE"
	case SingleTrie:
		return "SINGLE_TRIE"
	default:
		return "unknown"
	}
}

// Engine is the public double-array trie API (section 6.2): an
// associative store from byte-string keys to positive integer values.
type Engine interface {
	// Insert stores key -> value. value must be positive; ErrInvalidValue
	// otherwise. Re-inserting an existing key overwrites its value.
	Insert(key []byte, value int64) error
	// Search reports whether key is present and, if so, its value.
	Search(key []byte) (value int64, found bool)
	// PrefixSearch returns every stored key having prefix as a byte-string
	// prefix, in the underlying trie's depth-first enumeration order.
	PrefixSearch(prefix []byte) []Result
	// Build persists the engine to path (section 6.3). Returns an
	// io-error-wrapped error on any filesystem failure.
	Build(path string) error
	// Stats reports node/capacity counts for introspection (Stats()-style
	// primitives carried over from the original implementation's debug
	// tooling).
	Stats() Stats
	// Close releases any memory-mapped backing file. Safe to call on an
	// engine that was never memory-mapped.
	Close() error
}

// Stats summarizes an engine's internal table occupancy, useful for
// regression-harness reporting and capacity planning. Field meaning
// depends on Kind: a tail-trie engine leaves RhsNodes/RhsCapacity zero and
// reports suffix-array usage in SuffixUsed/SuffixCapacity instead.
type Stats struct {
	Kind                       Kind
	LhsNodes, LhsCapacity      int
	RhsNodes, RhsCapacity      int
	SuffixUsed, SuffixCapacity int
}

type doubleTrieEngine struct {
	e      *twoTrie
	mapped *mappedFile
}

func (d *doubleTrieEngine) Insert(key []byte, value int64) error {
	if d.mapped != nil {
		return ErrClosed
	}
	return d.e.insert(NewKey(key), value)
}

func (d *doubleTrieEngine) Search(key []byte) (int64, bool) {
	return d.e.search(NewKey(key))
}

func (d *doubleTrieEngine) PrefixSearch(prefix []byte) []Result {
	return d.e.prefixSearch(NewPrefix(prefix))
}

func (d *doubleTrieEngine) Build(path string) error {
	if err := buildTwoTrie(d.e, path); err != nil {
		return pkgerrors.Wrap(err, "build double-trie engine")
	}
	return nil
}

func (d *doubleTrieEngine) Stats() Stats {
	lhsNodes, lhsCap, rhsNodes, rhsCap := d.e.stats()
	return Stats{Kind: DoubleTrie, LhsNodes: lhsNodes, LhsCapacity: lhsCap, RhsNodes: rhsNodes, RhsCapacity: rhsCap}
}

func (d *doubleTrieEngine) Close() error {
	if d.mapped == nil {
		return nil
	}
	err := d.mapped.Close()
	d.mapped = nil
	return err
}

type singleTrieEngine struct {
	t      *tailTrie
	mapped *mappedFile
}

func (s *singleTrieEngine) Insert(key []byte, value int64) error {
	if s.mapped != nil {
		return ErrClosed
	}
	return s.t.insert(NewKey(key), value)
}

func (s *singleTrieEngine) Search(key []byte) (int64, bool) {
	return s.t.search(NewKey(key))
}

func (s *singleTrieEngine) PrefixSearch(prefix []byte) []Result {
	return s.t.prefixSearch(NewPrefix(prefix))
}

func (s *singleTrieEngine) Build(path string) error {
	if err := buildTailTrie(s.t, path); err != nil {
		return pkgerrors.Wrap(err, "build tail-trie engine")
	}
	return nil
}

func (s *singleTrieEngine) Stats() Stats {
	nodes, capacity, suffixUsed, suffixCap := s.t.stats()
	return Stats{Kind: SingleTrie, LhsNodes: nodes, LhsCapacity: capacity, SuffixUsed: suffixUsed, SuffixCapacity: suffixCap}
}

func (s *singleTrieEngine) Close() error {
	if s.mapped == nil {
		return nil
	}
	err := s.mapped.Close()
	s.mapped = nil
	return err
}

// New builds an empty engine of the requested kind. sizeHint sets the
// initial state-array capacity when it is at least 257; smaller values,
// including 0, use the default of 1024. A tail-trie engine's suffix array
// starts at the larger of sizeHint and 1024.
func New(kind Kind, sizeHint int32) Engine {
	logrus.WithFields(logrus.Fields{"kind": kind, "size_hint": sizeHint}).Debug("creating engine")
	switch kind {
	case SingleTrie:
		return &singleTrieEngine{t: newTailTrie(sizeHint)}
	default:
		return &doubleTrieEngine{e: newTwoTrie(sizeHint)}
	}
}

// Load reads an engine back from a file written by Engine.Build. kind must
// match what Build originally wrote, matching the original's split
// single_trie(filename)/double_trie(filename) constructors (the magic
// string is cross-checked regardless, so a wrong kind still fails closed
// with ErrFileCorrupted rather than misinterpreting the bytes).
func Load(kind Kind, path string) (Engine, error) {
	switch kind {
	case SingleTrie:
		t, err := loadTailTrie(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "load tail-trie engine")
		}
		return &singleTrieEngine{t: t}, nil
	default:
		e, err := loadTwoTrie(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "load double-trie engine")
		}
		return &doubleTrieEngine{e: e}, nil
	}
}

// LoadMmap reads an engine back from a file written by Engine.Build by
// memory-mapping it read-only (section 3.5, section 5 "Shared resources").
// Any mutating call (Insert) on the returned engine fails with ErrClosed.
// Call Close to release the mapping.
func LoadMmap(kind Kind, path string) (Engine, error) {
	switch kind {
	case SingleTrie:
		t, m, err := mmapTailTrie(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "mmap tail-trie engine")
		}
		return &singleTrieEngine{t: t, mapped: m}, nil
	default:
		e, m, err := mmapTwoTrie(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "mmap double-trie engine")
		}
		return &doubleTrieEngine{e: e, mapped: m}, nil
	}
}
