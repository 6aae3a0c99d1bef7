package mirror

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// DefaultChunkSize bounds per-iteration buffering so large files are never
// held in memory whole.
const DefaultChunkSize = 128 * 1024

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB to allow natural read-size chunks
// through without unnecessary blocking on small reads.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// copyStream copies src to dst in chunkSize-bounded reads. Either side's
// error stops the copy immediately; there is no resumption, so a failed
// copy leaves a truncated destination. Returns bytes written.
func copyStream(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int64, limiter *rate.Limiter) (int64, error) {
	// WaitN rejects requests larger than the burst outright, so a limit
	// below the chunk size must shrink the reads, not fail the copy.
	if limiter != nil {
		if burst := int64(limiter.Burst()); burst < chunkSize {
			chunkSize = burst
		}
	}
	buf := make([]byte, chunkSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read: %w", rerr)
		}
	}
}
