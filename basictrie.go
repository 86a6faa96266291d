package dtrie

const (
	// defaultStateSize is the initial state-array capacity used when no
	// size hint is given, matching kDefaultStateSize's role in the
	// original: big enough to hold one full branching level (alphabet
	// size) without an immediate resize.
	defaultStateSize int32 = 1024
	root             int32 = 1
)

// state is one cell of the double array: base/check pair, signed per
// section 3.2. base > 0 means interior (transitions possible), base < 0
// means leaf-with-attached-data (absolute value indexes an aux table
// owned by whichever engine owns this trie), base == 0 means unused/fresh.
type state struct {
	Base  int32
	Check int32
}

// basicTrie is the classical Aoe double-array trie (component C2): a
// flat state array with dynamic relocation of conflicting state groups on
// insert, ported from trie_impl.cc's basic_trie. It treats a non-positive
// base only as "no outgoing transitions"; what a negative base points at
// belongs to whichever engine (twoTrie, tailTrie) owns it.
type basicTrie struct {
	states    []state
	lastBase  int32
	maxState  int32
	relocator Relocator
}

func newBasicTrie(sizeHint int32) *basicTrie {
	if sizeHint < alphabetSize {
		sizeHint = defaultStateSize
	}
	t := &basicTrie{
		states:    make([]state, sizeHint),
		lastBase:  0,
		relocator: noopRelocator{},
	}
	// root (state 1) starts zero-valued like every fresh cell; its base
	// only ever grows away from 0 the first time a child is attached, and
	// no real allocation of a new base group ever lands below symbol
	// index 2, so it never collides with the reserved root id.
	t.touch(root)
	return t
}

func (t *basicTrie) setRelocator(r Relocator) {
	if r == nil {
		r = noopRelocator{}
	}
	t.relocator = r
}

// usedSize is the highest state index ever touched, plus one. The
// portion of the state array worth persisting (mirrors compact_header()
// trimming unused trailing capacity before a build).
func (t *basicTrie) usedSize() int32 { return t.maxState + 1 }

func (t *basicTrie) touch(s int32) {
	if s > t.maxState {
		t.maxState = s
	}
}

func (t *basicTrie) base(s int32) int32 {
	if s < 0 || s >= int32(len(t.states)) {
		return 0
	}
	return t.states[s].Base
}

func (t *basicTrie) check(s int32) int32 {
	if s < 0 || s >= int32(len(t.states)) {
		return 0
	}
	return t.states[s].Check
}

func (t *basicTrie) setBase(s int32, v int32) {
	if s >= int32(len(t.states)) {
		t.resizeState(s + 1)
	}
	t.states[s].Base = v
	t.touch(s)
}

func (t *basicTrie) setCheck(s int32, v int32) {
	if s >= int32(len(t.states)) {
		t.resizeState(s + 1)
	}
	t.states[s].Check = v
	t.touch(s)
}

// resizeState grows the state array geometrically (doubling) until it can
// hold index minLen-1. No shrinkage, per section 3.2 lifecycle.
func (t *basicTrie) resizeState(minLen int32) {
	cur := int32(len(t.states))
	if minLen <= cur {
		return
	}
	newCap := cur
	if newCap == 0 {
		newCap = defaultStateSize
	}
	for newCap < minLen {
		newCap *= 2
	}
	grown := make([]state, newCap)
	copy(grown, t.states)
	t.states = grown
}

// next computes the candidate child index for an edge s--c-->?, without
// validating that the edge actually exists.
func (t *basicTrie) next(s int32, c symbol) int32 { return t.base(s) + int32(c) }

// prev returns the parent of t, i.e. check(t). Named to match the
// original's prev()/go_backward naming used when walking the rear trie
// toward its root.
func (t *basicTrie) prev(s int32) int32 { return t.check(s) }

// checkTransition reports whether the edge landing at target actually
// belongs to s (check(target) == s).
func (t *basicTrie) checkTransition(s, target int32) bool {
	return target >= 0 && target < int32(len(t.states)) && t.check(target) == s
}

// checkReverseTransition reports whether the edge *into* s (from prev(s))
// is labeled c. The reverse of checkTransition, used when walking a trie
// backward from a leaf toward its root.
func (t *basicTrie) checkReverseTransition(s int32, c symbol) bool {
	p := t.prev(s)
	if p <= 0 {
		return false
	}
	return symbol(s-t.base(p)) == c
}

// findExistTarget returns every symbol c for which check(base(s)+c) == s
// (the real outgoing edges of s), plus the symbol extremum (min, max)
// across them. O(alphabetSize) per call, matching the linear scan in the
// original's find_exist_target.
func (t *basicTrie) findExistTarget(s int32) (targets []symbol, lo, hi symbol) {
	b := t.base(s)
	for c := minSymbol; c <= maxSymbol; c++ {
		idx := b + int32(c)
		if idx < 0 || idx >= int32(len(t.states)) {
			continue
		}
		if t.check(idx) == s {
			targets = append(targets, c)
			if lo == 0 || c < lo {
				lo = c
			}
			if hi == 0 || c > hi {
				hi = c
			}
		}
	}
	return targets, lo, hi
}

func (t *basicTrie) outdegree(s int32) int {
	targets, _, _ := t.findExistTarget(s)
	return len(targets)
}

// findBase scans upward from lastBase+1 for a base b such that every
// symbol in symbols (spanning [lo, hi]) lands on a free cell, per the
// relocation algorithm in section 4.1 step 4.
func (t *basicTrie) findBase(symbols []symbol, lo, hi symbol) int32 {
	i := t.lastBase
	for {
		i++
		if i+int32(hi) >= int32(len(t.states)) {
			t.resizeState(i + int32(hi) + 1)
		}
		if t.check(i+int32(lo)) <= 0 && t.check(i+int32(hi)) <= 0 {
			ok := true
			for _, c := range symbols {
				if t.check(i+int32(c)) > 0 {
					ok = false
					break
				}
			}
			if ok {
				break
			}
		}
	}
	t.lastBase = i - 255
	if t.lastBase < 1 {
		t.lastBase = 1
	}
	return i
}

// relocate moves the group of children described by symbols (the
// existing children of s, possibly plus one not-yet-created edge) to a
// freshly found base, per section 4.1 step 5. stand is a state the caller
// is holding onto across the call; if it gets moved, the new id is
// returned so the caller can keep using it.
func (t *basicTrie) relocate(stand, s int32, symbols []symbol, lo, hi symbol) int32 {
	obase := t.base(s)
	nbase := t.findBase(symbols, lo, hi)

	for _, c := range symbols {
		oldChild := obase + int32(c)
		if t.check(oldChild) != s {
			continue // not yet a real child (e.g. the edge being added)
		}
		newChild := nbase + int32(c)
		t.setBase(newChild, t.base(oldChild))
		t.setCheck(newChild, t.check(oldChild))

		grandchildren, _, _ := t.findExistTarget(oldChild)
		childBase := t.base(oldChild)
		for _, gc := range grandchildren {
			t.setCheck(childBase+int32(gc), newChild)
		}

		if stand == oldChild {
			stand = newChild
		}
		t.relocator.Relocate(oldChild, newChild)

		t.setBase(oldChild, 0)
		t.setCheck(oldChild, 0)
	}
	t.setBase(s, nbase)
	return stand
}

// createTransition ensures the edge s--c-->t exists, relocating whichever
// of s's or check(t)'s children are fewer in number when a collision is
// found (section 4.1, "Relocation algorithm").
func (t *basicTrie) createTransition(s int32, c symbol) int32 {
	tgt := t.next(s, c)
	if tgt >= int32(len(t.states)) || tgt < 0 {
		t.resizeState(tgt + 1)
	}

	if t.base(s) > 0 && t.check(tgt) <= 0 {
		// free cell, no collision.
	} else {
		targets, lo, hi := t.findExistTarget(s)
		var parentTargets []symbol
		var plo, phi symbol
		if t.check(tgt) > 0 {
			parentTargets, plo, phi = t.findExistTarget(t.check(tgt))
		}
		if len(parentTargets) > 0 && len(targets)+1 > len(parentTargets) {
			s = t.relocate(s, t.check(tgt), parentTargets, plo, phi)
		} else {
			targets = append(targets, c)
			if lo == 0 || c < lo {
				lo = c
			}
			if hi == 0 || c > hi {
				hi = c
			}
			s = t.relocate(s, s, targets, lo, hi)
		}
		tgt = t.next(s, c)
		if tgt >= int32(len(t.states)) || tgt < 0 {
			t.resizeState(tgt + 1)
		}
	}
	t.setCheck(tgt, s)
	return tgt
}

// goForward advances from s through syms as far as real transitions
// exist. The returned Key is nil iff every symbol was consumed.
func (t *basicTrie) goForward(s int32, syms Key) (int32, Key) {
	for i, c := range syms {
		b := t.base(s)
		if b <= 0 {
			return s, syms[i:]
		}
		nxt := b + int32(c)
		if !t.checkTransition(s, nxt) {
			return s, syms[i:]
		}
		s = nxt
	}
	return s, nil
}

// goForwardReverse advances from s through syms taken back-to-front (last
// symbol of syms first), as far as real transitions exist. Used to probe
// how much of a would-be rear-trie tail (which is stored reversed) is
// already present. The returned Key, when non-nil, is the unconsumed
// leading slice of syms, i.e. syms[:i+1], where syms[i] is the symbol at
// which the walk stopped.
func (t *basicTrie) goForwardReverse(s int32, syms Key) (int32, Key) {
	for i := len(syms) - 1; i >= 0; i-- {
		c := syms[i]
		b := t.base(s)
		if b <= 0 {
			return s, syms[:i+1]
		}
		nxt := b + int32(c)
		if !t.checkTransition(s, nxt) {
			return s, syms[:i+1]
		}
		s = nxt
	}
	return s, nil
}

// goBackward walks from r toward the root, matching each edge label
// (recovered via prev/base) against p in forward order. Used by the
// two-trie engine to read the reverse-stored rear trie as a normal,
// forward-ordered key. Returns the state reached and the unconsumed
// remainder of p (nil iff fully matched).
func (t *basicTrie) goBackward(r int32, p Key) (int32, Key) {
	for i, c := range p {
		if r == root {
			return r, p[i:]
		}
		parent := t.prev(r)
		label := symbol(r - t.base(parent))
		if label != c {
			return r, p[i:]
		}
		r = parent
	}
	return r, nil
}

// insert is the basic trie's own internal insert helper (section 4.1):
// walk/create transitions for every symbol of key, then stamp value onto
// the final leaf. value must be positive.
func (t *basicTrie) insert(key Key, value int32) error {
	if value <= 0 {
		return ErrInvalidValue
	}
	s, p := t.goForward(root, key)
	if p == nil {
		t.setBase(s, value) // duplicate key: overwrite
		return nil
	}
	for _, c := range p {
		s = t.createTransition(s, c)
	}
	t.setBase(s, value)
	return nil
}

func (t *basicTrie) search(key Key) (int32, bool) {
	s, p := t.goForward(root, key)
	if p != nil {
		return 0, false
	}
	return t.base(s), true
}

// prefixSearchAux depth-first enumerates leaves reachable from s. Once a
// requested mismatch symbol cannot be satisfied by any real child of the
// current node, but s itself is already a stored key's boundary (one of
// its real children is the terminator), the search collapses to full
// enumeration of the remaining subtree. This is what makes
// prefix_search("back!") equivalent to prefix_search("back") once "back"
// is itself a stored key: anything beyond a stored key enumerates
// everything stored under it rather than returning nothing. A mismatch
// that diverges at a node which is not itself a stored key's boundary
// (the "zzz" case, or any genuinely divergent branch) must not collapse:
// it has nothing to fall back to, so it enumerates nothing.
func (t *basicTrie) prefixSearchAux(s int32, mismatch Key, store *keyBuilder, emit func(Key, int32)) {
	targets, _, _ := t.findExistTarget(s)
	if len(targets) == 0 {
		if t.base(s) != 0 {
			emit(store.snapshot(), t.base(s))
		}
		return
	}

	if len(mismatch) > 0 && mismatch[0] != symbolTerminator {
		matched := false
		isKeyBoundary := false
		for _, c := range targets {
			if c == mismatch[0] {
				matched = true
			}
			if c == symbolTerminator {
				isKeyBoundary = true
			}
		}
		if !matched && isKeyBoundary {
			mismatch = nil
		}
	}

	for _, c := range targets {
		if len(mismatch) > 0 && mismatch[0] != symbolTerminator && mismatch[0] != c {
			continue
		}
		child := t.next(s, c)
		store.push(c)
		if len(mismatch) == 0 || mismatch[0] == symbolTerminator {
			t.prefixSearchAux(child, nil, store, emit)
		} else {
			t.prefixSearchAux(child, mismatch[1:], store, emit)
		}
		store.pop()
	}
}

// stats reports the number of occupied cells and the total capacity of the
// state array, for introspection only (Engine.Stats).
func (t *basicTrie) stats() (nodes, capacity int) {
	capacity = len(t.states)
	nodes = 1 // root, whose check is legitimately 0
	for i := int32(2); i <= t.maxState; i++ {
		if t.check(i) > 0 {
			nodes++
		}
	}
	return nodes, capacity
}

func (t *basicTrie) prefixSearch(prefix Key) []Result {
	s, mismatch := t.goForward(root, prefix)
	matchedLen := len(prefix) - len(mismatch)
	store := &keyBuilder{syms: append(Key(nil), prefix[:matchedLen]...)}
	var out []Result
	t.prefixSearchAux(s, mismatch, store, func(k Key, v int32) {
		out = append(out, Result{Key: k.Bytes(), Value: int64(v)})
	})
	return out
}
