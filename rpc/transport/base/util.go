package base

import (
	"bytes"
	"github.com/cockroachdb/errors"
	"io"
)

// ErrLineTooLong is returned when a line exceeds the configured limit
var ErrLineTooLong = errors.New("line too long")

// readChunkSize is the size of the read buffer used by ReadFrom
const readChunkSize = 32 * 1024

// LineBuffer reassembles newline delimited lines from arbitrarily split
// chunks. A trailing carriage return is stripped and empty lines are
// skipped. The slice passed to emit is only valid during the call.
type LineBuffer struct {
	pending []byte
	max     int
	emit    func(line []byte) error
}

// NewLineBuffer creates a LineBuffer calling emit for every complete line.
// A maxLine of zero disables the length limit.
func NewLineBuffer(maxLine int, emit func(line []byte) error) *LineBuffer {
	return &LineBuffer{max: maxLine, emit: emit}
}

// Push appends a chunk and emits every line it completes. The first error
// returned by emit stops processing and is returned.
func (b *LineBuffer) Push(chunk []byte) error {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if b.max > 0 && len(b.pending)+len(chunk) > b.max {
				return ErrLineTooLong
			}
			b.pending = append(b.pending, chunk...)
			return nil
		}

		line := chunk[:i]
		if len(b.pending) > 0 {
			b.pending = append(b.pending, line...)
			line = b.pending
		}
		chunk = chunk[i+1:]

		if b.max > 0 && len(line) > b.max {
			return ErrLineTooLong
		}

		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) > 0 {
			if err := b.emit(line); err != nil {
				return err
			}
		}
		b.pending = b.pending[:0]
	}
	return nil
}

// Pending returns the number of buffered bytes of the incomplete last line
func (b *LineBuffer) Pending() int {
	return len(b.pending)
}

// ReadFrom pushes everything read from r until r fails. An incomplete line
// at the end of the stream is dropped. The read error (io.EOF included) or
// the first push error is returned.
func (b *LineBuffer) ReadFrom(r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if pushErr := b.Push(buf[:n]); pushErr != nil {
				return pushErr
			}
		}
		if err != nil {
			return err
		}
	}
}
