// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// captureLimit bounds the in-memory stdio buffer (§4.5 step 2b): a
// chatty failing child must not be able to grow an error report
// without bound.
const captureLimit = 64 * 1024

// captureBuffer accumulates a bounded amount of a child's combined
// stdout/stderr for later attachment to a SpawnException. Safe for
// concurrent use by the copying goroutine and a reader taking a
// snapshot.
type captureBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	truncated bool
}

func newCaptureBuffer() *captureBuffer {
	return &captureBuffer{}
}

// Write implements io.Writer, discarding bytes past captureLimit.
func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := captureLimit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

// CopyFrom pumps data from r into the buffer until EOF or an error.
// Intended to run in its own goroutine alongside the handshake's other
// suspension points.
func (c *captureBuffer) CopyFrom(r io.Reader) {
	io.Copy(c, r)
}

// Compressed returns an lz4-compressed snapshot of the captured data,
// so attaching it to a SpawnException doesn't balloon the in-memory
// error object (§2 of SPEC_FULL's domain stack table).
func (c *captureBuffer) Compressed() []byte {
	c.mu.Lock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(data); err != nil {
		return data
	}
	if err := zw.Close(); err != nil {
		return data
	}
	return out.Bytes()
}

// decompressCapture is the inverse of captureBuffer.Compressed, used
// by callers that need to display the raw captured output.
func decompressCapture(compressed []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(zr)
}
