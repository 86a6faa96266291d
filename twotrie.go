package dtrie

// indexEntry is one slot of the front-trie's per-key side table. A
// separator state s (base(s) < 0) owns exactly one index entry, found at
// -base(s). indexRef == 0 means the key ends exactly at s (front-only, no
// rear tail); indexRef > 0 points into accept.
type indexEntry struct {
	IndexRef int32
	Data     int64
}

// acceptEntry names the rear-trie state a given index entry's tail begins
// at (read backward from there to reconstruct the tail).
type acceptEntry struct {
	Accept int32
}

// referEntry is the reverse-lookup half of an accept entry: given a rear
// state u acting as a tail endpoint, which front separators currently link
// to it, and at what accept-table slot.
type referEntry struct {
	AcceptIndex int32
	referer     map[int32]struct{}
}

// twoTrie is the two-trie engine (section 4.2): a forward front trie
// storing every key's shared-prefix structure, and a reverse rear trie
// storing tails, joined by the index/accept/refer tables. Ported from
// trie_impl.cc's double_trie.
type twoTrie struct {
	lhs, rhs *basicTrie

	index     []indexEntry
	acceptTbl []acceptEntry
	refer     map[int32]*referEntry

	freeIndex  []int32
	freeAccept []int32
	nextIndex  int32
	nextAccept int32

	// watcherU/watcherR hold the rear states rhs_insert needs to keep
	// referring to across its R-1..R-4 steps, named after the original's
	// watcher_[0]/watcher_[1].
	watcherU int32
	watcherR int32
}

func newTwoTrie(sizeHint int32) *twoTrie {
	e := &twoTrie{
		refer: make(map[int32]*referEntry),
		// entry 0 of both tables is never allocated (index_ref == 0 is the
		// front-only sentinel), so seed nextIndex/nextAccept at 1.
		nextIndex:  1,
		nextAccept: 1,
	}
	e.lhs = newBasicTrie(sizeHint)
	e.rhs = newBasicTrie(sizeHint)
	e.lhs.setRelocator(relocatorFunc(e.relocateFront))
	e.rhs.setRelocator(relocatorFunc(e.relocateRear))
	e.index = make([]indexEntry, 2)
	e.acceptTbl = make([]acceptEntry, 2)
	return e
}

// relocateFront fixes up every refer entry's referer set after a front-trie
// state (always a separator, since only separators are ever referenced) is
// renumbered by lhs's collision resolution.
func (e *twoTrie) relocateFront(oldID, newID int32) {
	for _, re := range e.refer {
		if _, ok := re.referer[oldID]; ok {
			delete(re.referer, oldID)
			re.referer[newID] = struct{}{}
		}
	}
}

// relocateRear fixes up every accept entry, the refer map's own key, and
// the in-flight rhs_insert watchers after a rear-trie state is renumbered.
func (e *twoTrie) relocateRear(oldID, newID int32) {
	for i := range e.acceptTbl {
		if e.acceptTbl[i].Accept == oldID {
			e.acceptTbl[i].Accept = newID
		}
	}
	if re, ok := e.refer[oldID]; ok {
		delete(e.refer, oldID)
		e.refer[newID] = re
	}
	if e.watcherU == oldID {
		e.watcherU = newID
	}
	if e.watcherR == oldID {
		e.watcherR = newID
	}
}

func (e *twoTrie) allocIndex() int32 {
	if n := len(e.freeIndex); n > 0 {
		i := e.freeIndex[n-1]
		e.freeIndex = e.freeIndex[:n-1]
		return i
	}
	i := e.nextIndex
	e.nextIndex++
	if int(i) >= len(e.index) {
		grown := make([]indexEntry, growCapacity(len(e.index), int(i)+1, 64))
		copy(grown, e.index)
		e.index = grown
	}
	return i
}

func (e *twoTrie) allocAccept() int32 {
	if n := len(e.freeAccept); n > 0 {
		i := e.freeAccept[n-1]
		e.freeAccept = e.freeAccept[:n-1]
		return i
	}
	i := e.nextAccept
	e.nextAccept++
	if int(i) >= len(e.acceptTbl) {
		grown := make([]acceptEntry, growCapacity(len(e.acceptTbl), int(i)+1, 64))
		copy(grown, e.acceptTbl)
		e.acceptTbl = grown
	}
	return i
}

func (e *twoTrie) isSeparator(s int32) bool { return e.lhs.base(s) < 0 }

// linkState returns the rear-trie accept state a separator s currently
// points at.
func (e *twoTrie) linkState(s int32) int32 {
	idx := -e.lhs.base(s)
	return e.acceptTbl[e.index[idx].IndexRef].Accept
}

// newSeparator allocates a fresh index slot for a brand-new front leaf s
// (base(s) == 0, not yet a separator) and turns s into one.
func (e *twoTrie) newSeparator(s int32) int32 {
	i := e.allocIndex()
	e.lhs.setBase(s, -i)
	return i
}

// linkAccept finds or creates the accept entry for rear state r, and
// registers s as one of its referers.
func (e *twoTrie) linkAccept(s int32, r int32) int32 {
	re, ok := e.refer[r]
	if !ok {
		a := e.allocAccept()
		e.acceptTbl[a].Accept = r
		re = &referEntry{AcceptIndex: a, referer: make(map[int32]struct{})}
		e.refer[r] = re
	}
	re.referer[s] = struct{}{}
	return re.AcceptIndex
}

// freeAcceptEntry releases the accept slot for u back to the free list and
// drops its refer entry. Callers must have already emptied the referer set.
func (e *twoTrie) freeAcceptEntry(u int32) {
	re, ok := e.refer[u]
	if !ok {
		return
	}
	e.freeAccept = append(e.freeAccept, re.AcceptIndex)
	delete(e.refer, u)
}

// setLink points front separator s at rear state r. If s is already a
// separator its existing index slot is reused and its old accept
// registration (if any) is dropped first; otherwise a fresh slot is
// allocated. Returns the index slot so the caller can stamp in a value.
func (e *twoTrie) setLink(s int32, r int32) int32 {
	var i int32
	if b := e.lhs.base(s); b < 0 {
		i = -b
		if old := e.index[i].IndexRef; old > 0 {
			oldAccept := e.acceptTbl[old].Accept
			if re, ok := e.refer[oldAccept]; ok {
				delete(re.referer, s)
				if len(re.referer) == 0 {
					e.freeAcceptEntry(oldAccept)
				}
			}
		}
	} else {
		i = e.newSeparator(s)
	}
	e.index[i].IndexRef = e.linkAccept(s, r)
	return i
}

// removeAcceptState drops u's refer/accept bookkeeping (if any) and removes
// it as a rear-trie cell outright, cutting the edge its parent used to
// reach it.
func (e *twoTrie) removeAcceptState(u int32) {
	if re, ok := e.refer[u]; ok {
		e.freeAccept = append(e.freeAccept, re.AcceptIndex)
		delete(e.refer, u)
	}
	e.rhs.setBase(u, 0)
	e.rhs.setCheck(u, 0)
}

func (e *twoTrie) countReferer(u int32) int {
	if re, ok := e.refer[u]; ok {
		return len(re.referer)
	}
	return 0
}

// rhsAppend stores inputs (forward order, terminator-ended) into the rear
// trie in reverse and returns the resulting accept state, matching
// rhs_append: it first walks as much of inputs as the rear trie already
// has (back-to-front, since tails are stored reversed), then either reuses
// what it found (nothing left to add) or extends it with the remainder.
// When the walk stops at a pure-leaf accept state (no children yet), that
// state is about to gain its first real child, so it can no longer serve
// double duty as both an interior node and an accept state on its own;
// any existing referers are migrated onto a new terminator child first.
func (e *twoTrie) rhsAppend(inputs Key) int32 {
	s, p := e.rhs.goForwardReverse(root, inputs)
	if p == nil {
		if e.rhs.outdegree(s) == 0 {
			return s
		}
		t := e.rhs.next(s, symbolTerminator)
		if !e.rhs.checkTransition(s, t) {
			return e.rhs.createTransition(s, symbolTerminator)
		}
		return t
	}

	if e.rhs.outdegree(s) == 0 {
		t := e.rhs.createTransition(s, symbolTerminator)
		if re, ok := e.refer[s]; ok {
			referers := make([]int32, 0, len(re.referer))
			for r := range re.referer {
				referers = append(referers, r)
			}
			for _, r := range referers {
				e.setLink(r, t)
			}
			e.freeAcceptEntry(s)
		}
	}
	for i := len(p) - 1; i >= 0; i-- {
		s = e.rhs.createTransition(s, p[i])
	}
	return s
}

// lhsInsert extends the front trie by the first unmatched symbol of a
// brand-new key (s has no existing separator yet) and, if there is more key
// left, stores the remainder as a fresh rear tail.
func (e *twoTrie) lhsInsert(s int32, p Key, value int64) {
	s = e.lhs.createTransition(s, p[0])
	var i int32
	if p[0] == symbolTerminator {
		i = e.newSeparator(s)
	} else {
		a := e.rhsAppend(p[1:])
		i = e.setLink(s, a)
	}
	e.index[i].Data = value
}

// rhsInsert splits an existing tail when a new key's remaining symbols
// diverge from it partway through (section 4.2, steps R-1..R-4). s is the
// existing separator, r is the rear state reached at the point of
// mismatch, match is the common prefix already walked (forward order),
// remain is the new key's unmatched tail starting at the mismatch symbol,
// and mismatchSym is the label of the stored edge at the point of
// divergence.
func (e *twoTrie) rhsInsert(s, r int32, match []symbol, remain Key, mismatchSym symbol, value int64) {
	// R-1: detach s from its current tail.
	u := e.linkState(s)
	invariant(u > 0, "rhs_insert: separator has no link state")
	invariant(e.rhs.check(u) > 0, "rhs_insert: link state is not a real rear state")
	idx := -e.lhs.base(s)
	oval := e.index[idx].Data
	e.index[idx].IndexRef = 0
	e.index[idx].Data = 0
	e.freeIndex = append(e.freeIndex, idx)
	e.lhs.setBase(s, 0)
	e.watcherU = u
	e.watcherR = r
	if re, ok := e.refer[u]; ok {
		delete(re.referer, s)
		if len(re.referer) == 0 {
			e.freeAcceptEntry(u)
		}
	}

	// R-2: extend the front trie through the shared prefix, then branch for
	// the new key's own remainder.
	for _, c := range match {
		s = e.lhs.createTransition(s, c)
	}
	t := e.lhs.createTransition(s, remain[0])
	if remain[0] == symbolTerminator {
		i := e.newSeparator(t)
		e.index[i].Data = value
	} else {
		a := e.rhsAppend(remain[1:])
		i := e.setLink(t, a)
		e.index[i].Data = value
	}

	// R-3: reinstate the old key under the new branch point.
	t = e.lhs.createTransition(s, mismatchSym)
	v := e.rhs.prev(e.watcherR)
	var newR int32
	if !e.rhs.checkTransition(v, e.rhs.next(v, symbolTerminator)) {
		newR = e.rhs.createTransition(v, symbolTerminator)
	} else {
		newR = e.rhs.next(v, symbolTerminator)
	}
	i := e.setLink(t, newR)
	e.index[i].Data = oval

	// R-4: garbage-collect whatever's left of the old tail above u.
	if !e.rhsCleanOne(e.watcherU) {
		e.rhsCleanMore(e.watcherU)
	}
}

// rhsCleanOne reports whether u needs no cleanup: either something else
// still refers to it, or it still branches toward other tails.
func (e *twoTrie) rhsCleanOne(u int32) bool {
	if e.countReferer(u) > 0 {
		return true
	}
	return e.rhs.outdegree(u) > 0
}

// rhsCleanMore unwinds a now-dangling rear-trie chain upward: a state with
// no children and no referers is pure dead weight and is removed, recursing
// to its parent; a state reduced to exactly its terminator child is
// coalesced into that child's role (it becomes the new accept endpoint
// directly, and the now-redundant terminator leaf is dropped).
func (e *twoTrie) rhsCleanMore(t int32) {
	if e.rhs.outdegree(t) == 0 && e.countReferer(t) == 0 {
		invariant(e.rhs.check(t) > 0, "rhs_clean_more: state has no parent")
		parent := e.rhs.prev(t)
		e.removeAcceptState(t)
		if parent > root {
			e.rhsCleanMore(parent)
		}
		return
	}
	if e.rhs.outdegree(t) == 1 {
		r := e.rhs.next(t, symbolTerminator)
		if e.rhs.checkTransition(t, r) {
			if re, ok := e.refer[r]; ok {
				referers := make([]int32, 0, len(re.referer))
				for s := range re.referer {
					referers = append(referers, s)
				}
				for _, s := range referers {
					e.setLink(s, t)
				}
			}
			if e.rhs.base(r) > 1 {
				e.rhs.lastBase = e.rhs.base(r)
			}
			e.removeAcceptState(r)
		}
	}
}

// insert stores key -> value, splitting an existing tail via rhsInsert
// when key diverges from a previously stored key partway through its tail.
func (e *twoTrie) insert(key Key, value int64) error {
	if value <= 0 {
		return ErrInvalidValue
	}
	s, p := e.lhs.goForward(root, key)
	if p == nil {
		e.index[-e.lhs.base(s)].Data = value // duplicate key: overwrite
		return nil
	}
	if !e.isSeparator(s) {
		e.lhsInsert(s, p, value)
		return nil
	}

	r := e.linkState(s)
	if e.rhs.checkReverseTransition(r, symbolTerminator) && e.rhs.prev(r) > root {
		r = e.rhs.prev(r)
	}

	var exists []symbol
	for {
		invariant(len(p) > 0, "insert: unterminated key reached rhs match loop")
		c := p[0]
		if !e.rhs.checkReverseTransition(r, c) {
			break
		}
		r = e.rhs.prev(r)
		exists = append(exists, c)
		if r == root {
			e.index[-e.lhs.base(s)].Data = value
			return nil
		}
		if c == symbolTerminator {
			p = p[1:]
			break
		}
		p = p[1:]
	}
	mismatch := symbol(r - e.rhs.base(e.rhs.prev(r)))
	e.rhsInsert(s, r, exists, p, mismatch, value)
	return nil
}

func (e *twoTrie) search(key Key) (int64, bool) {
	s, p := e.lhs.goForward(root, key)
	if p == nil {
		return e.index[-e.lhs.base(s)].Data, true
	}
	if !e.isSeparator(s) {
		return 0, false
	}
	r := e.linkState(s)
	if e.rhs.checkReverseTransition(r, symbolTerminator) {
		r = e.rhs.prev(r)
	}
	r, _ = e.rhs.goBackward(r, p)
	if r == root {
		return e.index[-e.lhs.base(s)].Data, true
	}
	return 0, false
}

func (e *twoTrie) prefixSearch(prefix Key) []Result {
	s, mismatch := e.lhs.goForward(root, prefix)
	if e.lhs.checkReverseTransition(s, symbolTerminator) {
		s = e.lhs.prev(s)
	}
	matchedLen := len(prefix) - len(mismatch)
	store := &keyBuilder{syms: append(Key(nil), prefix[:matchedLen]...)}

	type rawHit struct {
		front Key
		idx   int32
	}
	var hits []rawHit
	e.lhs.prefixSearchAux(s, mismatch, store, func(k Key, v int32) {
		hits = append(hits, rawHit{front: append(Key(nil), k...), idx: -v})
	})

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		entry := e.index[h.idx]
		if entry.IndexRef == 0 {
			out = append(out, Result{Key: h.front.Bytes(), Value: entry.Data})
			continue
		}

		miss := mismatch
		if len(h.front) > matchedLen {
			// reached below s only through prefixSearchAux's collapse,
			// which drops the leftover input.
			miss = nil
		}
		failed := false
		var tail Key
		r := e.acceptTbl[entry.IndexRef].Accept
		if e.rhs.checkReverseTransition(r, symbolTerminator) {
			r = e.rhs.prev(r)
		}
		for r > root {
			parent := e.rhs.prev(r)
			ch := symbol(r - e.rhs.base(parent))
			r = parent
			if len(miss) > 0 && miss[0] != symbolTerminator {
				if ch != miss[0] {
					failed = true
					break
				}
				miss = miss[1:]
			}
			tail = append(tail, ch)
		}
		if failed || (len(miss) > 0 && miss[0] != symbolTerminator) {
			continue
		}
		full := append(append(Key(nil), h.front...), tail...)
		out = append(out, Result{Key: full.Bytes(), Value: entry.Data})
	}
	return out
}

// stats reports occupied/capacity cell counts for both the front and rear
// tries, for introspection (Engine.Stats).
func (e *twoTrie) stats() (lhsNodes, lhsCap, rhsNodes, rhsCap int) {
	lhsNodes, lhsCap = e.lhs.stats()
	rhsNodes, rhsCap = e.rhs.stats()
	return
}
