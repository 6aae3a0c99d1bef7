package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	c.AddFilesCopied(2)
	c.AddFilesFailed(1)
	c.AddFilesSkipped(3)
	c.AddBytesCopied(1024)
	c.AddDirsVisited(4)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.FilesCopied)
	assert.Equal(t, int64(1), snap.FilesFailed)
	assert.Equal(t, int64(3), snap.FilesSkipped)
	assert.Equal(t, int64(1024), snap.BytesCopied)
	assert.Equal(t, int64(4), snap.DirsVisited)
	assert.GreaterOrEqual(t, snap.Elapsed, time.Duration(0))
}

func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AddBytesCopied(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1600), c.Snapshot().BytesCopied)
}

func TestCollector_RollingSpeed(t *testing.T) {
	c := NewCollector()
	assert.Zero(t, c.RollingSpeed(10))

	c.AddBytesCopied(1000)
	c.Tick()
	c.AddBytesCopied(3000)
	c.Tick()

	assert.InDelta(t, 2000.0, c.RollingSpeed(2), 0.1)
	assert.InDelta(t, 3000.0, c.RollingSpeed(1), 0.1)
}

func TestSnapshot_String(t *testing.T) {
	c := NewCollector()
	c.AddFilesCopied(5)
	assert.Contains(t, c.Snapshot().String(), "copied=5")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
