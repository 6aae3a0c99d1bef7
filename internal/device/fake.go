package device

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/afero"
)

// Compile-time interface check.
var _ Channel = (*FakeChannel)(nil)

type propKey struct {
	property string
	domain   string
}

// FakeChannel is an in-memory Channel backed by an afero MemMapFs. It is
// used by tests and by fake-device runs, and reproduces the raw protocol
// quirks the real channel has: listings include "." and "..", and file
// creation is implicit on write.
type FakeChannel struct {
	fs    afero.Fs
	props map[propKey]string
}

// NewFakeChannel returns an empty in-memory device.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		fs:    afero.NewMemMapFs(),
		props: make(map[propKey]string),
	}
}

// SetProperty seeds a device property for ReadProperty to return.
func (c *FakeChannel) SetProperty(property, domain, value string) {
	c.props[propKey{property, domain}] = value
}

// MkdirAll creates a directory tree on the fake device.
func (c *FakeChannel) MkdirAll(path string) error {
	return c.fs.MkdirAll(path, 0o755)
}

// WriteFile seeds a file on the fake device.
func (c *FakeChannel) WriteFile(path string, data []byte) error {
	return afero.WriteFile(c.fs, path, data, 0o644)
}

// ReadFile reads back a file from the fake device.
func (c *FakeChannel) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(c.fs, path)
}

func (c *FakeChannel) ReadProperty(property, domain string) (string, bool) {
	v, ok := c.props[propKey{property, domain}]
	return v, ok
}

func (c *FakeChannel) ListDirectory(path string) ([]string, error) {
	infos, err := afero.ReadDir(c.fs, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos)+2)
	// The real protocol returns dot entries; keep the quirk so filtering
	// is exercised the same way.
	names = append(names, ".", "..")
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (c *FakeChannel) GetMetadata(path, key string) (string, bool) {
	info, err := c.fs.Stat(path)
	if err != nil {
		return "", false
	}
	switch key {
	case MetaFormat:
		return formatToken(info.Mode()), true
	case MetaSize:
		return strconv.FormatInt(info.Size(), 10), true
	case MetaModTime:
		return strconv.FormatInt(info.ModTime().Unix(), 10), true
	default:
		return "", false
	}
}

func (c *FakeChannel) Exists(path string) bool {
	_, err := c.fs.Stat(path)
	return err == nil
}

func (c *FakeChannel) OpenRead(path string) (io.ReadCloser, error) {
	return c.fs.Open(path)
}

func (c *FakeChannel) OpenWrite(path string) (io.WriteCloser, error) {
	return c.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (c *FakeChannel) Close() error { return nil }
