// Copyright The 5G-MAG Authors.
// SPDX-License-Identifier: MPL-2.0

package common

import (
	"io"
	"sync"
)

type synchronizedWriter struct {
	io.Writer
	mutex sync.Mutex
}

// SynchronizeWriter wraps a writer so that concurrent writes do not
// interleave. The supervisor uses it for the child process output buffers.
func SynchronizeWriter(writer io.Writer) io.Writer {
	return &synchronizedWriter{Writer: writer}
}

func (w *synchronizedWriter) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.Writer.Write(p)
}
