package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTree(t *testing.T) *FakeChannel {
	t.Helper()
	ch := NewFakeChannel()
	require.NoError(t, ch.MkdirAll("/Media/sub"))
	require.NoError(t, ch.WriteFile("/Media/a.mp3", []byte("aaa")))
	require.NoError(t, ch.WriteFile("/Media/.hidden", []byte("h")))
	return ch
}

func TestClassify(t *testing.T) {
	ch := seedTree(t)

	assert.Equal(t, KindFile, Classify(ch, "/Media/a.mp3"))
	assert.Equal(t, KindDirectory, Classify(ch, "/Media/sub"))
	assert.Equal(t, KindUnknown, Classify(ch, "/Media/nope"))
}

func TestClassify_BadToken(t *testing.T) {
	ch := &stubMetaChannel{Channel: seedTree(t), format: "S_IFSOCK"}
	assert.Equal(t, KindUnknown, Classify(ch, "/Media/a.mp3"))
}

// stubMetaChannel overrides the format token for every path.
type stubMetaChannel struct {
	Channel
	format string
}

func (c *stubMetaChannel) GetMetadata(_, key string) (string, bool) {
	if key == MetaFormat {
		return c.format, true
	}
	return "", false
}

// countingChannel counts metadata round trips.
type countingChannel struct {
	Channel
	metaCalls int
}

func (c *countingChannel) GetMetadata(path, key string) (string, bool) {
	c.metaCalls++
	return c.Channel.GetMetadata(path, key)
}

func TestList_CheapPathSkipsMetadata(t *testing.T) {
	ch := &countingChannel{Channel: seedTree(t)}

	entries, err := List(ch, "/Media", ListFilter{
		IncludeHidden: true,
		IncludeDot:    true,
		Kinds:         AllKinds,
	})
	require.NoError(t, err)

	assert.Zero(t, ch.metaCalls)
	names := entryNames(entries)
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "a.mp3")
	for _, e := range entries {
		assert.Equal(t, KindUnknown, e.Kind)
	}
}

func TestList_Filtering(t *testing.T) {
	ch := seedTree(t)

	entries, err := List(ch, "/Media", ListFilter{Kinds: Files | Directories})
	require.NoError(t, err)

	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"a.mp3", "sub"}, names)
}

func TestList_IncludeHidden(t *testing.T) {
	ch := seedTree(t)

	entries, err := List(ch, "/Media", ListFilter{IncludeHidden: true, Kinds: Files})
	require.NoError(t, err)

	names := entryNames(entries)
	assert.ElementsMatch(t, []string{"a.mp3", ".hidden"}, names)
}

func TestList_DirectoryMaskSubset(t *testing.T) {
	ch := seedTree(t)

	all, err := List(ch, "/Media", ListFilter{IncludeHidden: true, IncludeDot: true, Kinds: AllKinds})
	require.NoError(t, err)
	dirs, err := List(ch, "/Media", ListFilter{Kinds: Directories})
	require.NoError(t, err)

	allNames := entryNames(all)
	for _, e := range dirs {
		assert.Contains(t, allNames, e.Name)
		assert.Equal(t, KindDirectory, Classify(ch, "/Media/"+e.Name))
	}
}

// blindMetaChannel fails the metadata query for one path.
type blindMetaChannel struct {
	Channel
	blind string
}

func (c *blindMetaChannel) GetMetadata(path, key string) (string, bool) {
	if path == c.blind {
		return "", false
	}
	return c.Channel.GetMetadata(path, key)
}

func TestList_UnknownsMask(t *testing.T) {
	ch := &blindMetaChannel{Channel: seedTree(t), blind: "/Media/a.mp3"}

	// Without the Unknowns bit the unclassifiable entry is dropped.
	entries, err := List(ch, "/Media", ListFilter{IncludeHidden: true, Kinds: AllKinds})
	require.NoError(t, err)
	assert.NotContains(t, entryNames(entries), "a.mp3")

	// With it, the entry comes back as KindUnknown.
	entries, err = List(ch, "/Media", ListFilter{IncludeHidden: true, Kinds: AllKinds | Unknowns})
	require.NoError(t, err)
	names := entryNames(entries)
	require.Contains(t, names, "a.mp3")
	for _, e := range entries {
		if e.Name == "a.mp3" {
			assert.Equal(t, KindUnknown, e.Kind)
		}
	}
}

func TestList_MissingDirectory(t *testing.T) {
	ch := NewFakeChannel()
	_, err := List(ch, "/nope", ListFilter{Kinds: AllKinds})
	assert.Error(t, err)
}

func entryNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}
