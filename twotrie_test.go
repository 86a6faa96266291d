package dtrie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTwoTrieTailSharingAndSplit exercises rhsInsert's divergence path
// directly: "badge" is stored as front "b" plus the rear tail "adge"
// (reversed), which "badger" splits, moving "adge" into the front trie;
// "badness" then branches off the front trie at "bad" through lhsInsert.
func TestTwoTrieTailSharingAndSplit(t *testing.T) {
	e := newTwoTrie(0)
	require.NoError(t, e.insert(NewKey([]byte("badge")), 1))
	require.NoError(t, e.insert(NewKey([]byte("badger")), 2))
	require.NoError(t, e.insert(NewKey([]byte("badness")), 3))
	require.NoError(t, e.insert(NewKey([]byte("bad")), 4))

	cases := map[string]int64{"badge": 1, "badger": 2, "badness": 3, "bad": 4}
	for k, v := range cases {
		got, found := e.search(NewKey([]byte(k)))
		require.True(t, found, "expected %q to be found", k)
		assert.Equal(t, v, got)
	}
	_, found := e.search(NewKey([]byte("badg")))
	assert.False(t, found)
}

func TestTwoTrieReferMapReconstructionAfterLoad(t *testing.T) {
	e := newTwoTrie(0)
	words := []string{"bachelor", "back", "badge", "badger", "badness", "bcs", "backbone"}
	for i, w := range words {
		require.NoError(t, e.insert(NewKey([]byte(w)), int64(i+1)))
	}

	path := t.TempDir() + "/two.trie"
	require.NoError(t, buildTwoTrie(e, path))

	loaded, err := loadTwoTrie(path)
	require.NoError(t, err)

	for i, w := range words {
		got, found := loaded.search(NewKey([]byte(w)))
		require.True(t, found)
		assert.Equal(t, int64(i+1), got)
	}

	// Every referer recorded in the reloaded refer map must point at a real
	// accept-table entry naming the same rear state.
	for u, re := range loaded.refer {
		for s := range re.referer {
			idx := -loaded.lhs.base(s)
			require.Greater(t, idx, int32(0))
			a := loaded.index[idx].IndexRef
			require.Greater(t, a, int32(0))
			assert.Equal(t, u, loaded.acceptTbl[a].Accept)
		}
	}
}

func TestTwoTrieInsertRejectsNonPositiveValue(t *testing.T) {
	e := newTwoTrie(0)
	assert.ErrorIs(t, e.insert(NewKey([]byte("x")), 0), ErrInvalidValue)
}

// TestTwoTrieSharedSuffixRoundTrip covers the case the original review
// caught missing: one key's rear tail is a proper suffix of another's
// ("xb"'s tail "b" is a suffix of "yab"'s tail "ab"), so rhs_append finds
// the whole tail already stored at an interior rear state and adds a
// terminator child there as the new accept state rather than creating
// fresh edges from root. Both keys must remain independently retrievable
// afterward.
func TestTwoTrieSharedSuffixRoundTrip(t *testing.T) {
	e := newTwoTrie(0)
	require.NoError(t, e.insert(NewKey([]byte("yab")), 1))
	require.NoError(t, e.insert(NewKey([]byte("xb")), 2))

	got, found := e.search(NewKey([]byte("yab")))
	require.True(t, found)
	assert.Equal(t, int64(1), got)

	got, found = e.search(NewKey([]byte("xb")))
	require.True(t, found)
	assert.Equal(t, int64(2), got)

	_, found = e.search(NewKey([]byte("b")))
	assert.False(t, found)
}

// TestTwoTrieSharedPrefixDistinctTailsRoundTrip covers the shared-front-
// prefix-distinct-tail case: "badge" and "badger" land on the same front
// separator and diverge only partway through the rear tail, forcing
// rhsInsert's split. Both keys must remain independently retrievable.
func TestTwoTrieSharedPrefixDistinctTailsRoundTrip(t *testing.T) {
	e := newTwoTrie(0)
	require.NoError(t, e.insert(NewKey([]byte("badge")), 1))
	require.NoError(t, e.insert(NewKey([]byte("badger")), 2))

	got, found := e.search(NewKey([]byte("badge")))
	require.True(t, found)
	assert.Equal(t, int64(1), got)

	got, found = e.search(NewKey([]byte("badger")))
	require.True(t, found)
	assert.Equal(t, int64(2), got)
}
