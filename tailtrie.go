package dtrie

// tailTrie is the tail-trie engine (section 4.3): a single basic trie
// whose leaves hold a negative pointer into a flat suffix array storing
// each key's unique remaining tail verbatim, followed immediately by its
// value. Ported from trie_impl.cc's single_trie.
type tailTrie struct {
	trie       *basicTrie
	suffix     []int64
	nextSuffix int32
}

func newTailTrie(sizeHint int32) *tailTrie {
	t := &tailTrie{nextSuffix: 1} // slot 0 is never written; leaves a falsy sentinel free
	t.trie = newBasicTrie(sizeHint)
	capacity := sizeHint
	if capacity < defaultStateSize {
		capacity = defaultStateSize
	}
	t.suffix = make([]int64, capacity)
	return t
}

func (t *tailTrie) ensureSuffixCap(minLen int32) {
	if int(minLen) <= len(t.suffix) {
		return
	}
	grown := make([]int64, growCapacity(len(t.suffix), int(minLen), int(defaultStateSize)))
	copy(grown, t.suffix)
	t.suffix = grown
}

// insertSuffix writes inputs (forward order, terminator-ended) verbatim
// into the suffix array starting at a fresh slot, followed by value, and
// points s's leaf at that slot.
func (t *tailTrie) insertSuffix(s int32, inputs Key, value int64) {
	t.trie.setBase(s, -t.nextSuffix)
	i := 0
	for {
		c := inputs[i]
		t.ensureSuffixCap(t.nextSuffix + 1)
		t.suffix[t.nextSuffix] = int64(c)
		t.nextSuffix++
		if c == symbolTerminator {
			break
		}
		i++
	}
	t.ensureSuffixCap(t.nextSuffix + 1)
	t.suffix[t.nextSuffix] = value
	t.nextSuffix++
}

// createBranch splits an existing leaf s (whose suffix diverges from
// inputs partway through) into a real trie branch: the shared prefix
// becomes real transitions, and each side gets its own twig: the old
// suffix's remainder re-pointed in place, the new key's remainder written
// fresh.
func (t *tailTrie) createBranch(s int32, inputs Key, value int64) {
	start := -t.trie.base(s)

	var common []symbol
	var lo, hi symbol
	pi := 0
	for {
		if t.suffix[start] != int64(inputs[pi]) {
			break
		}
		c := inputs[pi]
		common = append(common, c)
		if lo == 0 || c < lo {
			lo = c
		}
		if hi == 0 || c > hi {
			hi = c
		}
		start++
		term := c == symbolTerminator
		pi++
		if term {
			break
		}
	}

	if len(common) > 0 && common[len(common)-1] == symbolTerminator {
		t.suffix[start] = value // duplicate key: overwrite
		return
	}

	if len(common) > 0 {
		t.trie.setBase(s, t.trie.findBase(common, lo, hi))
		for _, c := range common {
			s = t.trie.createTransition(s, c)
		}
	} else {
		t.trie.setBase(s, 0)
	}

	oldSym := symbol(t.suffix[start])
	twig := t.trie.createTransition(s, oldSym)
	t.trie.setBase(twig, -(start + 1))

	newSym := inputs[pi]
	twig = t.trie.createTransition(s, newSym)
	if newSym == symbolTerminator {
		t.ensureSuffixCap(t.nextSuffix + 1)
		t.trie.setBase(twig, -t.nextSuffix)
		t.suffix[t.nextSuffix] = value
		t.nextSuffix++
	} else {
		t.insertSuffix(twig, inputs[pi+1:], value)
	}
}

func (t *tailTrie) insert(key Key, value int64) error {
	if value <= 0 {
		return ErrInvalidValue
	}
	s, p := t.trie.goForward(root, key)
	if t.trie.base(s) < 0 {
		if p != nil {
			t.createBranch(s, p, value)
		} else {
			t.suffix[-t.trie.base(s)] = value // duplicate key: overwrite
		}
		return nil
	}
	s = t.trie.createTransition(s, p[0])
	if p[0] == symbolTerminator {
		t.ensureSuffixCap(t.nextSuffix + 1)
		t.trie.setBase(s, -t.nextSuffix)
		t.suffix[t.nextSuffix] = value
		t.nextSuffix++
	} else {
		t.insertSuffix(s, p[1:], value)
	}
	return nil
}

func (t *tailTrie) search(key Key) (int64, bool) {
	s, p := t.trie.goForward(root, key)
	if t.trie.base(s) >= 0 {
		return 0, false
	}
	start := -t.trie.base(s)
	if p != nil {
		for _, c := range p {
			if int64(c) != t.suffix[start] {
				return 0, false
			}
			start++
			if c == symbolTerminator {
				break
			}
		}
	}
	return t.suffix[start], true
}

func (t *tailTrie) prefixSearch(prefix Key) []Result {
	s, mismatch := t.trie.goForward(root, prefix)
	if t.trie.checkReverseTransition(s, symbolTerminator) {
		s = t.trie.prev(s)
	}
	matchedLen := len(prefix) - len(mismatch)
	store := &keyBuilder{syms: append(Key(nil), prefix[:matchedLen]...)}

	type rawHit struct {
		key Key
		neg int32
	}
	var hits []rawHit
	t.trie.prefixSearchAux(s, mismatch, store, func(k Key, v int32) {
		hits = append(hits, rawHit{key: append(Key(nil), k...), neg: v})
	})

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		start := int64(-h.neg)
		if len(h.key) > 0 && h.key[len(h.key)-1] == symbolTerminator {
			out = append(out, Result{Key: h.key.Bytes(), Value: t.suffix[start]})
			continue
		}

		miss := mismatch
		if len(h.key) > matchedLen {
			// reached below s only through prefixSearchAux's collapse,
			// which drops the leftover input.
			miss = nil
		}
		failed := false
		full := append(Key(nil), h.key...)
		for t.suffix[start] != int64(symbolTerminator) {
			c := symbol(t.suffix[start])
			if len(miss) > 0 && miss[0] != symbolTerminator {
				if miss[0] != c {
					failed = true
					break
				}
				miss = miss[1:]
			}
			full = append(full, c)
			start++
		}
		if failed || (len(miss) > 0 && miss[0] != symbolTerminator) {
			continue
		}
		out = append(out, Result{Key: full.Bytes(), Value: t.suffix[start+1]})
	}
	return out
}

func (t *tailTrie) stats() (nodes, capacity, suffixUsed, suffixCap int) {
	nodes, capacity = t.trie.stats()
	return nodes, capacity, int(t.nextSuffix), len(t.suffix)
}
