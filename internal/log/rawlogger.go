package log

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger dumps raw USB-IP traffic.
type RawLogger interface {
	Log(in bool, data []byte)
}

type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw returns a RawLogger writing to w. A nil w discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log writes one line per chunk: timestamp, direction, length and hex bytes.
// in is client to server.
func (r *rawLogger) Log(in bool, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}
	dir := "S->C"
	if in {
		dir = "C->S"
	}
	line := fmt.Sprintf("%s %s %d bytes: % x\n",
		time.Now().Format("2006/01/02 15:04:05.000"), dir, len(data), data)

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}

// Dump formats data as a canonical hex dump, for debug logging of reports.
func Dump(data []byte) string { return hex.EncodeToString(data) }
