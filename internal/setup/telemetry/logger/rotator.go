package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// LogRotator is an io.Writer that keeps a log file bounded to its most recent lines.
// Lines are mirrored into a ring buffer and the file is rewritten from the buffer
// once twice the capacity has been written since the last rewrite.
type LogRotator struct {
	mu       sync.Mutex
	writer   io.Writer
	filePath string
	lines    []string
	head     int // next write position
	size     int // lines currently buffered
	written  int // lines written since the last rewrite
}

// NewLogRotator creates a new LogRotator keeping at most maxLines lines.
func NewLogRotator(writer io.Writer, maxLines int, filePath string) *LogRotator {
	if maxLines <= 0 {
		maxLines = 1
	}

	return &LogRotator{
		writer:   writer,
		filePath: filePath,
		lines:    make([]string, maxLines),
	}
}

// Write implements io.Writer.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		w.push(string(line))

		if w.written >= 2*len(w.lines) {
			if err := w.rewrite(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.written = w.size
		}
	}

	return n, nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogRotator) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.snapshot()
}

func (w *LogRotator) push(line string) {
	w.lines[w.head] = line
	w.head = (w.head + 1) % len(w.lines)

	if w.size < len(w.lines) {
		w.size++
	}

	w.written++
}

func (w *LogRotator) snapshot() []string {
	out := make([]string, 0, w.size)
	start := (w.head - w.size + len(w.lines)) % len(w.lines)

	for i := range w.size {
		out = append(out, w.lines[(start+i)%len(w.lines)])
	}

	return out
}

// rewrite replaces the log file with the buffered lines and reopens it for appending.
func (w *LogRotator) rewrite() error {
	if w.filePath == "" || w.size == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	var buf bytes.Buffer
	for _, line := range w.snapshot() {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if _, err := temp.Write(buf.Bytes()); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows refuses to rename over an existing file
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	file, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = file

	return nil
}
