package dtrie

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadBasicTrieRoundTrip(t *testing.T) {
	trie := newBasicTrie(0)
	words := []string{"a", "ab", "abc", "abd", "b", "bcd", "bce"}
	for i, w := range words {
		require.NoError(t, trie.insert(NewKey([]byte(w)), int32(i+1)))
	}

	var buf bytes.Buffer
	require.NoError(t, writeBasicTrie(&buf, trie))

	loaded, err := readBasicTrie(&buf)
	require.NoError(t, err)

	for i, w := range words {
		got, found := loaded.search(NewKey([]byte(w)))
		require.True(t, found, "expected %q to be found after round trip", w)
		assert.Equal(t, int32(i+1), got)
	}
	assert.Equal(t, trie.usedSize(), loaded.usedSize())
	assert.Equal(t, trie.lastBase, loaded.lastBase)
}

func TestByteReaderEOF(t *testing.T) {
	r := newByteReader([]byte{1, 2, 3})
	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
