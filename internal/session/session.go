package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bmercer/afcmirror/internal/device"
	"github.com/bmercer/afcmirror/internal/event"
	"github.com/bmercer/afcmirror/internal/mirror"
)

// State is the session lifecycle. There is no cancelled terminal state:
// a cancelled run still finishes, reporting success=false.
type State int32

const (
	NotStarted State = iota
	Running
	Completed
	CompletedWithErrors
)

var stateNames = [...]string{
	NotStarted:          "not-started",
	Running:             "running",
	Completed:           "completed",
	CompletedWithErrors: "completed-with-errors",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Sink receives the session's two lifecycle notifications: exactly one
// start and one finish per run, the finish carrying the aggregate success
// flag.
type Sink interface {
	TaskStarted(taskID string)
	TransferFinished(success bool)
}

// NopSink discards lifecycle notifications.
type NopSink struct{}

func (NopSink) TaskStarted(string)    {}
func (NopSink) TransferFinished(bool) {}

// DefaultDirectories is the device subtree set considered part of the
// logical library.
func DefaultDirectories() []string {
	return []string{"/iTunes_Control", "/Books", "/Photos"}
}

// Config describes one transfer session.
type Config struct {
	LocalRoot   string
	Directories []string // ordered device paths; nil = DefaultDirectories
	Direction   mirror.Direction
	Mirror      *mirror.Mirror // nil = defaults
	Sink        Sink           // nil = NopSink
	Events      event.Func
}

// DirectoryResult pairs a top-level directory with its mirror outcome.
type DirectoryResult struct {
	Directory string
	mirror.Result
}

// Results collects per-directory outcomes in processing order.
type Results struct {
	Dirs []DirectoryResult
}

// Success reports whether zero entries failed across all directories.
func (r Results) Success() bool {
	for _, d := range r.Dirs {
		if !d.Ok() {
			return false
		}
	}
	return true
}

// Session orchestrates one logical mirror operation over a borrowed
// channel. It owns no device resources and is discarded after Run.
type Session struct {
	id    string
	cfg   Config
	state atomic.Int32
}

// New creates a Session with a fresh task id.
func New(cfg Config) *Session {
	if cfg.Directories == nil {
		cfg.Directories = DefaultDirectories()
	}
	if cfg.Mirror == nil {
		cfg.Mirror = mirror.New(mirror.Config{Events: cfg.Events})
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	return &Session{id: uuid.NewString(), cfg: cfg}
}

// ID returns the session's task identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state. Safe to call from outside
// the worker goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

// Run mirrors every configured top-level directory in order, one at a
// time. A failure in one directory never alters processing of its
// siblings; only the aggregate outcome reflects it. Run blocks; callers
// wanting the operation off their control flow run it on a dedicated
// goroutine and keep the channel exclusive to it.
func (s *Session) Run(ctx context.Context, ch device.Channel) Results {
	s.state.Store(int32(Running))
	s.cfg.Sink.TaskStarted(s.id)
	s.cfg.Events.Emit(event.Event{Type: event.TaskStarted, Path: s.cfg.LocalRoot})

	var results Results
	for _, dir := range s.cfg.Directories {
		local := s.localPath(dir)

		var res mirror.Result
		if s.cfg.Direction == mirror.ToDevice {
			// A library that never pulled this subtree has nothing to
			// push; that is not a failure.
			if _, err := os.Stat(local); err != nil {
				results.Dirs = append(results.Dirs, DirectoryResult{Directory: dir})
				continue
			}
			res = s.cfg.Mirror.CopyDir(ctx, ch, local, dir, mirror.ToDevice)
		} else {
			res = s.cfg.Mirror.CopyDir(ctx, ch, dir, local, mirror.FromDevice)
		}
		results.Dirs = append(results.Dirs, DirectoryResult{Directory: dir, Result: res})
	}

	success := results.Success()
	if success {
		s.state.Store(int32(Completed))
	} else {
		s.state.Store(int32(CompletedWithErrors))
	}
	s.cfg.Sink.TransferFinished(success)
	s.cfg.Events.Emit(event.Event{Type: event.TransferFinished, Success: success})

	return results
}

// localPath maps a device directory to its local mirror location.
func (s *Session) localPath(deviceDir string) string {
	rel := filepath.FromSlash(strings.TrimPrefix(deviceDir, "/"))
	return filepath.Join(s.cfg.LocalRoot, rel)
}
