package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TaskStarted Type = iota + 1
	DirStarted
	DirFailed
	FileCopied
	FileFailed
	FileSkipped
	TransferFinished
)

var typeNames = [...]string{
	TaskStarted:      "TaskStarted",
	DirStarted:       "DirStarted",
	DirFailed:        "DirFailed",
	FileCopied:       "FileCopied",
	FileFailed:       "FileFailed",
	FileSkipped:      "FileSkipped",
	TransferFinished: "TransferFinished",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single diagnostic event from a transfer. The lifecycle
// contract is carried by the session's sink; events are per-entry detail
// on top of it.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // source path of the entry
	Dest      string // destination path, when one was chosen
	Size      int64  // bytes copied for FileCopied
	Error     error
	Success   bool // aggregate outcome for TransferFinished
}

// Func receives events. A nil Func is allowed everywhere and means no
// diagnostics.
type Func func(Event)

// Emit calls f with e after stamping the timestamp. Safe on a nil Func.
func (f Func) Emit(e Event) {
	if f == nil {
		return
	}
	e.Timestamp = time.Now()
	f(e)
}
