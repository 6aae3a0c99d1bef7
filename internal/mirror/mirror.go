package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bmercer/afcmirror/internal/device"
	"github.com/bmercer/afcmirror/internal/event"
	"github.com/bmercer/afcmirror/internal/stats"
)

// Direction fixes which side is source and which is destination for a
// whole operation.
type Direction int

const (
	ToDevice Direction = iota
	FromDevice
)

func (d Direction) String() string {
	if d == ToDevice {
		return "to-device"
	}
	return "from-device"
}

// EntryError records a single failed entry. The aggregate result carries
// these instead of aborting sibling work.
type EntryError struct {
	Path string
	Err  error
}

func (e EntryError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e EntryError) Unwrap() error { return e.Err }

// Result is the aggregate outcome of mirroring one tree. Ok means every
// reachable entry was attempted and none failed.
type Result struct {
	Copied  int64
	Skipped int64
	Failed  []EntryError
}

// Ok reports whether zero entries failed.
func (r Result) Ok() bool { return len(r.Failed) == 0 }

// Config controls a Mirror.
type Config struct {
	ChunkSize int64             // stream copy chunk size; 0 = DefaultChunkSize
	Limiter   *rate.Limiter     // aggregate bandwidth cap; nil = unlimited
	Verify    bool              // re-read destinations and compare hashes
	Stats     *stats.Collector  // nil = private collector
	Alloc     *device.Allocator // device-side name allocation; nil = defaults
	Events    event.Func
}

// Mirror recursively reproduces a source tree under a destination root, in
// either direction across a device channel.
type Mirror struct {
	cfg Config
}

// New creates a Mirror, filling config defaults.
func New(cfg Config) *Mirror {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Alloc == nil {
		cfg.Alloc = device.NewAllocator("", nil)
	}
	return &Mirror{cfg: cfg}
}

// Hidden entries are copied but dot entries never are. Symlinks and
// unclassifiable entries come back so the walk can account for skipping
// them, matching the local side.
var deviceListFilter = device.ListFilter{
	IncludeHidden: true,
	Kinds:         device.AllKinds | device.Unknowns,
}

type dirPair struct {
	src string
	dst string
}

// CopyDir mirrors the tree rooted at srcRoot into dstRoot.
//
// Traversal is depth-first with an explicit work stack, so arbitrarily
// deep trees cannot grow the call stack. A file failure is recorded and
// siblings continue; a listing failure abandons that subtree only. The
// context is polled between entries; cancellation is recorded as the final
// failure and the walk stops.
func (m *Mirror) CopyDir(ctx context.Context, ch device.Channel, srcRoot, dstRoot string, direction Direction) Result {
	var res Result

	stack := []dirPair{{src: srcRoot, dst: dstRoot}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, EntryError{Path: p.src, Err: err})
			return res
		}

		m.cfg.Events.Emit(event.Event{Type: event.DirStarted, Path: p.src})
		m.cfg.Stats.AddDirsVisited(1)

		entries, err := m.listSource(ch, p.src, direction, &res)
		if err != nil {
			res.Failed = append(res.Failed, EntryError{Path: p.src, Err: err})
			m.cfg.Events.Emit(event.Event{Type: event.DirFailed, Path: p.src, Error: err})
			continue
		}

		// The device side already contains its structure (file creation is
		// implicit on write), so only local destinations are created.
		if direction == FromDevice {
			if err := os.MkdirAll(p.dst, 0o755); err != nil {
				res.Failed = append(res.Failed, EntryError{Path: p.dst, Err: err})
				m.cfg.Events.Emit(event.Event{Type: event.DirFailed, Path: p.src, Error: err})
				continue
			}
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				res.Failed = append(res.Failed, EntryError{Path: p.src, Err: err})
				return res
			}

			switch e.Kind {
			case device.KindDirectory:
				stack = append(stack, dirPair{
					src: join(direction == FromDevice, p.src, e.Name),
					dst: join(direction == ToDevice, p.dst, e.Name),
				})
			case device.KindFile:
				m.copyFile(ctx, ch, p, e.Name, direction, &res)
			default:
				// Symlinks are never followed or copied, and entries whose
				// metadata query failed are never copied or descended into.
				res.Skipped++
				m.cfg.Stats.AddFilesSkipped(1)
				m.cfg.Events.Emit(event.Event{
					Type: event.FileSkipped,
					Path: join(direction == FromDevice, p.src, e.Name),
				})
			}
		}
	}

	return res
}

// listSource lists one directory of the source side as classified entries.
func (m *Mirror) listSource(ch device.Channel, src string, direction Direction, res *Result) ([]device.Entry, error) {
	if direction == FromDevice {
		return device.List(ch, src, deviceListFilter)
	}

	dirents, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", src, err)
	}
	entries := make([]device.Entry, 0, len(dirents))
	for _, d := range dirents {
		switch {
		case d.IsDir():
			entries = append(entries, device.Entry{Name: d.Name(), Kind: device.KindDirectory})
		case d.Type().IsRegular():
			entries = append(entries, device.Entry{Name: d.Name(), Kind: device.KindFile})
		default:
			// Symlinks and specials are not transferable to the device.
			res.Skipped++
			m.cfg.Stats.AddFilesSkipped(1)
			m.cfg.Events.Emit(event.Event{Type: event.FileSkipped, Path: filepath.Join(src, d.Name())})
		}
	}
	return entries, nil
}

func (m *Mirror) copyFile(ctx context.Context, ch device.Channel, p dirPair, name string, direction Direction, res *Result) {
	var srcPath, dstPath string
	var written int64
	var err error

	if direction == FromDevice {
		srcPath = path.Join(p.src, name)
		dstPath = filepath.Join(p.dst, name)
		written, err = m.copyFromDevice(ctx, ch, srcPath, dstPath)
	} else {
		srcPath = filepath.Join(p.src, name)
		// Device filenames come from the bucket allocator, not the source
		// name: the device shards files across numbered buckets instead of
		// mirroring source structure.
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		dstPath, err = m.cfg.Alloc.Allocate(ch, strings.ToLower(ext))
		if err == nil {
			written, err = m.copyToDevice(ctx, ch, srcPath, dstPath)
		}
	}

	if err != nil {
		res.Failed = append(res.Failed, EntryError{Path: srcPath, Err: err})
		m.cfg.Stats.AddFilesFailed(1)
		m.cfg.Events.Emit(event.Event{Type: event.FileFailed, Path: srcPath, Dest: dstPath, Error: err})
		return
	}

	res.Copied++
	m.cfg.Stats.AddFilesCopied(1)
	m.cfg.Events.Emit(event.Event{Type: event.FileCopied, Path: srcPath, Dest: dstPath, Size: written})
}

func (m *Mirror) copyFromDevice(ctx context.Context, ch device.Channel, srcPath, dstPath string) (int64, error) {
	rc, err := ch.OpenRead(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open device file: %w", err)
	}
	defer rc.Close()

	w, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dstPath, err)
	}

	written, err := m.transfer(ctx, w, rc)
	if closeErr := w.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", dstPath, closeErr)
	}
	if err != nil {
		// A truncated destination is left behind; it is invalid and must
		// be re-copied wholesale.
		return written, err
	}

	if m.cfg.Verify {
		if err := m.verifyLocal(ch, srcPath, dstPath); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (m *Mirror) copyToDevice(ctx context.Context, ch device.Channel, srcPath, dstPath string) (int64, error) {
	rc, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer rc.Close()

	w, err := ch.OpenWrite(dstPath)
	if err != nil {
		return 0, fmt.Errorf("open device file for write: %w", err)
	}

	written, err := m.transfer(ctx, w, rc)
	if closeErr := w.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close device file: %w", closeErr)
	}
	if err != nil {
		return written, err
	}

	if m.cfg.Verify {
		if err := m.verifyDevice(ch, srcPath, dstPath); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (m *Mirror) transfer(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	written, err := copyStream(ctx, dst, src, m.cfg.ChunkSize, m.cfg.Limiter)
	m.cfg.Stats.AddBytesCopied(written)
	return written, err
}

// join picks the right path semantics for each side: device paths are
// always slash-separated, local paths follow the host filesystem.
func join(devicePath bool, dir, name string) string {
	if devicePath {
		return path.Join(dir, name)
	}
	return filepath.Join(dir, name)
}
