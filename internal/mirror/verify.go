package mirror

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/bmercer/afcmirror/internal/device"
)

// verifyLocal re-reads a file pulled from the device and compares its
// BLAKE3 hash against the device-side source.
func (m *Mirror) verifyLocal(ch device.Channel, srcPath, dstPath string) error {
	src, err := ch.OpenRead(srcPath)
	if err != nil {
		return fmt.Errorf("verify: reopen device file: %w", err)
	}
	defer src.Close()

	dst, err := os.Open(dstPath)
	if err != nil {
		return fmt.Errorf("verify: reopen %s: %w", dstPath, err)
	}
	defer dst.Close()

	return compareHashes(src, dst)
}

// verifyDevice re-reads a file pushed to the device and compares its
// BLAKE3 hash against the local source.
func (m *Mirror) verifyDevice(ch device.Channel, srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("verify: reopen %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := ch.OpenRead(dstPath)
	if err != nil {
		return fmt.Errorf("verify: reopen device file: %w", err)
	}
	defer dst.Close()

	return compareHashes(src, dst)
}

func compareHashes(src, dst io.Reader) error {
	srcHash, err := hashReader(src)
	if err != nil {
		return fmt.Errorf("verify: hash source: %w", err)
	}
	dstHash, err := hashReader(dst)
	if err != nil {
		return fmt.Errorf("verify: hash destination: %w", err)
	}
	if srcHash != dstHash {
		return fmt.Errorf("verify: checksum mismatch: %s != %s", srcHash, dstHash)
	}
	return nil
}

func hashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
