package dtrie

import (
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGarbageFile(path string) error {
	return os.WriteFile(path, []byte("not a dtrie file at all, just garbage bytes"), 0o644)
}

var regressDict = []string{"bachelor", "back", "badge", "badger", "badness", "bcs", "backbone"}

func insertDict(t *testing.T, e Engine) map[string]int64 {
	t.Helper()
	want := make(map[string]int64, len(regressDict))
	for i, w := range regressDict {
		require.NoError(t, e.Insert([]byte(w), int64(i+1)))
		want[w] = int64(i + 1)
	}
	return want
}

func sortedKeys(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = string(r.Key)
	}
	sort.Strings(out)
	return out
}

func TestEngineInsertSearch(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			want := insertDict(t, e)

			for w, v := range want {
				value, found := e.Search([]byte(w))
				assert.True(t, found, "expected %q to be found", w)
				assert.Equal(t, v, value)
			}

			_, found := e.Search([]byte("nonexistent"))
			assert.False(t, found)
			_, found = e.Search([]byte("bac"))
			assert.False(t, found, "a stored prefix that is not itself a key must not match")
		})
	}
}

// TestEngineSharedSuffixAndPrefixRoundTrip inserts a dictionary mixing a
// proper-suffix pair ("xb" is a suffix of "yab") with a shared-front-
// prefix/distinct-tail pair ("badge"/"badger"), and checks every key is
// still retrievable after all inserts, the scenario a missing test left
// uncovered before.
func TestEngineSharedSuffixAndPrefixRoundTrip(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			words := []string{"yab", "xb", "badge", "badger", "badness"}
			for i, w := range words {
				require.NoError(t, e.Insert([]byte(w), int64(i+1)))
			}
			for i, w := range words {
				value, found := e.Search([]byte(w))
				require.True(t, found, "expected %q to be found", w)
				assert.Equal(t, int64(i+1), value)
			}
		})
	}
}

func TestEngineInsertOverwritesDuplicateKey(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			require.NoError(t, e.Insert([]byte("back"), 1))
			require.NoError(t, e.Insert([]byte("back"), 99))

			value, found := e.Search([]byte("back"))
			require.True(t, found)
			assert.Equal(t, int64(99), value)
		})
	}
}

func TestEngineInsertRejectsNonPositiveValue(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			assert.ErrorIs(t, e.Insert([]byte("x"), 0), ErrInvalidValue)
			assert.ErrorIs(t, e.Insert([]byte("x"), -1), ErrInvalidValue)
		})
	}
}

// TestPrefixSearchBoundaryBeyondLongestRealPath reproduces the original
// regression scenario: scanning every length-prefix of "back!" against a
// dictionary containing "back" and "backbone". Once the scanned prefix
// exhausts the real trie path ("back"), anything appended beyond it
// ("!") must enumerate exactly what prefix "back" alone would have
// enumerated, not nothing.
func TestPrefixSearchBoundaryBeyondLongestRealPath(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			insertDict(t, e)

			back := sortedKeys(e.PrefixSearch([]byte("back")))
			backBang := sortedKeys(e.PrefixSearch([]byte("back!")))

			assert.Equal(t, []string{"back", "backbone"}, back)
			assert.Equal(t, back, backBang)
		})
	}
}

func TestPrefixSearchExactAndEmpty(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			insertDict(t, e)

			all := sortedKeys(e.PrefixSearch([]byte("")))
			want := append([]string(nil), regressDict...)
			sort.Strings(want)
			assert.Equal(t, want, all)

			bad := sortedKeys(e.PrefixSearch([]byte("bad")))
			assert.Equal(t, []string{"badge", "badger", "badness"}, bad)
		})
	}
}

func TestPrefixSearchNoMatches(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			insertDict(t, e)
			assert.Empty(t, e.PrefixSearch([]byte("zzz")))
		})
	}
}

// TestPrefixSearchEmptyEngine covers the case a maintainer review caught
// missing: a freshly constructed engine has never inserted a key, so its
// root is childless but holds no value either. PrefixSearch must return
// nothing instead of emitting a phantom empty-key result (DoubleTrie) or
// panicking while reading an all-zero suffix array (SingleTrie).
func TestPrefixSearchEmptyEngine(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			assert.Empty(t, e.PrefixSearch([]byte("")))
			assert.Empty(t, e.PrefixSearch([]byte("anything")))
		})
	}
}

// TestPrefixSearchDivergentBranch covers the case a maintainer review
// caught missing: a mismatch that diverges partway into the trie, at a
// node that is not itself a stored key's boundary, must enumerate nothing
// rather than collapsing to the whole subtree the way "back!" correctly
// does once "back" is itself a complete key.
func TestPrefixSearchDivergentBranch(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			insertDict(t, e)
			assert.Empty(t, e.PrefixSearch([]byte("badz")))
		})
	}
}

func TestEngineBuildLoadRoundTrip(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			want := insertDict(t, e)

			path := t.TempDir() + "/engine.trie"
			require.NoError(t, e.Build(path))

			loaded, err := Load(kind, path)
			require.NoError(t, err)
			defer loaded.Close()

			for w, v := range want {
				value, found := loaded.Search([]byte(w))
				require.True(t, found, "expected %q to be found after reload", w)
				assert.Equal(t, v, value)
			}

			back := sortedKeys(loaded.PrefixSearch([]byte("back")))
			assert.Equal(t, []string{"back", "backbone"}, back)
		})
	}
}

func TestEngineLoadMmapRoundTrip(t *testing.T) {
	for _, kind := range []Kind{DoubleTrie, SingleTrie} {
		t.Run(kind.String(), func(t *testing.T) {
			e := New(kind, 0)
			want := insertDict(t, e)

			path := t.TempDir() + "/engine.trie"
			require.NoError(t, e.Build(path))

			loaded, err := LoadMmap(kind, path)
			require.NoError(t, err)
			defer loaded.Close()

			for w, v := range want {
				value, found := loaded.Search([]byte(w))
				require.True(t, found)
				assert.Equal(t, v, value)
			}

			assert.ErrorIs(t, loaded.Insert([]byte("new"), 1), ErrClosed)
		})
	}
}

func TestLoadRejectsWrongFile(t *testing.T) {
	path := t.TempDir() + "/not-a-trie"
	require.NoError(t, writeGarbageFile(path))

	_, err := Load(DoubleTrie, path)
	assert.ErrorIs(t, err, ErrFileCorrupted)

	_, err = Load(SingleTrie, path)
	assert.ErrorIs(t, err, ErrFileCorrupted)
}

func TestEngineStats(t *testing.T) {
	e := New(DoubleTrie, 0)
	insertDict(t, e)
	stats := e.Stats()
	assert.Equal(t, DoubleTrie, stats.Kind)
	assert.Greater(t, stats.LhsNodes, 0)
	assert.Greater(t, stats.RhsNodes, 0)

	e2 := New(SingleTrie, 0)
	insertDict(t, e2)
	stats2 := e2.Stats()
	assert.Equal(t, SingleTrie, stats2.Kind)
	assert.Greater(t, stats2.SuffixUsed, 0)
}
