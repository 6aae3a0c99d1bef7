package device

import "io"

// Metadata keys exposed by the device's file-info call. The device reports
// file attributes as flat key/value string pairs rather than a stat struct.
const (
	MetaFormat  = "st_ifmt"
	MetaSize    = "st_size"
	MetaModTime = "st_mtime"
)

// Format tokens for the MetaFormat key.
const (
	FormatRegular   = "S_IFREG"
	FormatDirectory = "S_IFDIR"
	FormatSymlink   = "S_IFLNK"
)

// Well-known lockdown properties readable through ReadProperty.
const (
	PropDeviceName      = "DeviceName"
	PropProductVersion  = "ProductVersion"
	PropBatteryCapacity = "BatteryCurrentCapacity"

	BatteryDomain = "com.apple.mobile.battery"
)

// Channel is the narrow capability interface over a device's filesystem.
// Implementations own the underlying transport session; callers borrow the
// channel for the duration of a single operation and never store it.
//
// All paths are absolute, slash-separated device paths.
type Channel interface {
	// ReadProperty reads a device-scoped property from the given domain
	// (empty domain means the global domain). Absence is reported as
	// ok=false, not as an error.
	ReadProperty(property, domain string) (value string, ok bool)

	// ListDirectory returns the raw entry names of a directory, in device
	// order. The listing is unfiltered and may include "." and "..".
	ListDirectory(path string) ([]string, error)

	// GetMetadata returns a single metadata value for path. A missing path
	// or missing key is reported as ok=false; absence is data, not failure.
	GetMetadata(path, key string) (value string, ok bool)

	// Exists reports whether path is present on the device.
	Exists(path string) bool

	// OpenRead opens a device file for reading.
	OpenRead(path string) (io.ReadCloser, error)

	// OpenWrite opens a device file for writing, creating it if needed.
	// Device file creation is implicit on write; there is no separate
	// create call.
	OpenWrite(path string) (io.WriteCloser, error)

	// Close tears down the transport session.
	Close() error
}
