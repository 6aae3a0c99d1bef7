package device

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allocName = regexp.MustCompile(`^/iTunes_Control/Music/F0\d/libgpod\d{6}\.[a-z0-9]+$`)

func seedBuckets(t *testing.T, n int) *FakeChannel {
	t.Helper()
	ch := NewFakeChannel()
	a := NewAllocator("", nil)
	for i := 0; i < n; i++ {
		require.NoError(t, ch.MkdirAll(a.bucket(i)))
	}
	return ch
}

func TestAllocate_NoBuckets(t *testing.T) {
	ch := NewFakeChannel()
	alloc := NewAllocator("", rand.New(rand.NewSource(1)))

	_, err := alloc.Allocate(ch, "mp3")
	assert.ErrorIs(t, err, ErrNoBuckets)
}

func TestAllocate_Shape(t *testing.T) {
	ch := seedBuckets(t, 3)
	alloc := NewAllocator("", rand.New(rand.NewSource(42)))

	p, err := alloc.Allocate(ch, "m4a")
	require.NoError(t, err)
	assert.Regexp(t, allocName, p)
	assert.Equal(t, ".m4a", p[len(p)-4:])
	assert.False(t, ch.Exists(p))
}

func TestAllocate_DefaultExtension(t *testing.T) {
	ch := seedBuckets(t, 1)
	alloc := NewAllocator("", rand.New(rand.NewSource(7)))

	p, err := alloc.Allocate(ch, "")
	require.NoError(t, err)
	assert.Equal(t, ".mp3", p[len(p)-4:])
}

func TestAllocate_NeverReturnsExisting(t *testing.T) {
	ch := seedBuckets(t, 2)
	alloc := NewAllocator("", rand.New(rand.NewSource(3)))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := alloc.Allocate(ch, "mp3")
		require.NoError(t, err)
		assert.False(t, ch.Exists(p), "allocated path already exists: %s", p)
		assert.False(t, seen[p], "allocated path twice: %s", p)
		seen[p] = true

		// Materialize the allocation, as the copy engine would.
		require.NoError(t, ch.WriteFile(p, []byte("x")))
	}
}

func TestAllocate_CustomRoot(t *testing.T) {
	ch := NewFakeChannel()
	require.NoError(t, ch.MkdirAll("/Storage/F00"))
	alloc := NewAllocator("/Storage", rand.New(rand.NewSource(9)))

	p, err := alloc.Allocate(ch, "ogg")
	require.NoError(t, err)
	assert.Regexp(t, `^/Storage/F00/libgpod\d{6}\.ogg$`, p)
}

func TestCountBuckets(t *testing.T) {
	assert.Equal(t, 0, NewAllocator("", nil).CountBuckets(NewFakeChannel()))
	assert.Equal(t, 4, NewAllocator("", nil).CountBuckets(seedBuckets(t, 4)))
}

func TestCountBuckets_StopsAtGap(t *testing.T) {
	ch := NewFakeChannel()
	a := NewAllocator("", nil)
	require.NoError(t, ch.MkdirAll(a.bucket(0)))
	require.NoError(t, ch.MkdirAll(a.bucket(2))) // F01 missing

	assert.Equal(t, 1, a.CountBuckets(ch))
}

// vanishingChannel reports the bucket present during the probe but gone on
// the re-check.
type vanishingChannel struct {
	Channel
	bucket string
	checks int
}

func (c *vanishingChannel) Exists(path string) bool {
	if path == c.bucket {
		c.checks++
		return c.checks <= 1
	}
	return c.Channel.Exists(path)
}

func TestAllocate_BucketVanished(t *testing.T) {
	base := NewFakeChannel()
	a := NewAllocator("", rand.New(rand.NewSource(1)))
	ch := &vanishingChannel{Channel: base, bucket: a.bucket(0)}

	_, err := a.Allocate(ch, "mp3")
	assert.ErrorIs(t, err, ErrBucketVanished)
}

// denseChannel claims every candidate filename is taken.
type denseChannel struct {
	Channel
}

func (c *denseChannel) Exists(path string) bool {
	if allocName.MatchString(path) {
		return true
	}
	return c.Channel.Exists(path)
}

func TestAllocate_NameExhausted(t *testing.T) {
	ch := &denseChannel{Channel: seedBuckets(t, 1)}
	alloc := NewAllocator("", rand.New(rand.NewSource(5)))

	_, err := alloc.Allocate(ch, "mp3")
	assert.ErrorIs(t, err, ErrNameExhausted)
}
