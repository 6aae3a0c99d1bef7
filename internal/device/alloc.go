package device

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// DefaultMusicRoot is where the device convention keeps its storage
// buckets.
const DefaultMusicRoot = "/iTunes_Control/Music"

// Allocation failures. All are recoverable at file granularity; callers
// mark the single copy failed and move on.
var (
	ErrNoBuckets      = errors.New("no storage bucket directories on device")
	ErrBucketVanished = errors.New("chosen bucket directory vanished")
	ErrNameExhausted  = errors.New("gave up finding an unused filename")
)

const (
	bucketPattern = "F%02d"
	namePrefix    = "libgpod"
	nameMax       = 999999 // candidate suffixes are drawn from [0, nameMax)
	fallbackExt   = "mp3"

	// The device's own naming convention drew candidates until one was
	// free, with no cap. Under a dense bucket that loop can starve, so we
	// bound it and report exhaustion instead.
	maxNameAttempts = 100
)

// Allocator picks unused device filenames following the device's bucketed
// storage convention: files are sharded pseudo-randomly across numbered
// FNN bucket directories, named with a fixed prefix and a random numeric
// suffix rather than mirroring source paths.
type Allocator struct {
	root string
	rnd  *rand.Rand
}

// NewAllocator creates an allocator over the bucket directories under root.
// An empty root means DefaultMusicRoot. rnd may be nil, in which case a
// time-seeded source is used; tests inject a fixed seed to make bucket and
// name choices deterministic.
func NewAllocator(root string, rnd *rand.Rand) *Allocator {
	if root == "" {
		root = DefaultMusicRoot
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Allocator{root: root, rnd: rnd}
}

// Root returns the bucket root path.
func (a *Allocator) Root() string { return a.root }

// CountBuckets probes FNN directories sequentially and returns how many
// exist. The convention numbers buckets contiguously from F00, so the
// first gap ends the probe.
func (a *Allocator) CountBuckets(ch Channel) int {
	n := 0
	for ; ; n++ {
		if !ch.Exists(a.bucket(n)) {
			break
		}
	}
	return n
}

// Allocate returns a device path that does not exist at the time of
// return. extHint is the source file's extension (without dot); when empty
// the fallback extension is used.
//
// The returned path is only guaranteed unused at allocation time; the
// caller must write to it immediately, treating allocation and use as one
// step.
func (a *Allocator) Allocate(ch Channel, extHint string) (string, error) {
	total := a.CountBuckets(ch)
	if total <= 0 {
		return "", ErrNoBuckets
	}

	dir := a.bucket(a.rnd.Intn(total))

	// Re-check: the device may have reorganized since the probe.
	if !ch.Exists(dir) {
		return "", fmt.Errorf("%w: %s", ErrBucketVanished, dir)
	}

	ext := strings.ToLower(extHint)
	if ext == "" {
		ext = fallbackExt
	}

	for i := 0; i < maxNameAttempts; i++ {
		candidate := fmt.Sprintf("%s/%s%06d.%s", dir, namePrefix, a.rnd.Intn(nameMax), ext)
		if !ch.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts in %s", ErrNameExhausted, maxNameAttempts, dir)
}

func (a *Allocator) bucket(n int) string {
	return a.root + "/" + fmt.Sprintf(bucketPattern, n)
}
