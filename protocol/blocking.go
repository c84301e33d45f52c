// File: protocol/blocking.go
// Author: momentics <momentics@gmail.com>
//
// Blocking single-connection handler. It performs the same read/write/flush
// sequence as the event loop but parks the caller on every call.

package protocol

import (
	"fmt"
	"io"

	"github.com/momentics/busyhttp/api"
)

type flusher interface {
	Flush() error
}

// HandleBlocking serves one request on rw using a buffer of bufSize bytes and
// returns the request bytes that were read. A peer that disconnects before the
// delimiter or before the response is fully written yields api.ErrConnClosed.
func HandleBlocking(rw io.ReadWriter, bufSize int) ([]byte, error) {
	if bufSize < len(Delimiter) {
		return nil, fmt.Errorf("buffer size %d: %w", bufSize, api.ErrInvalidArgument)
	}
	buf := make([]byte, bufSize)
	filled := 0
	end := -1
	for end < 0 {
		if filled == len(buf) {
			return buf[:filled], api.ErrRequestTooLarge
		}
		n, err := rw.Read(buf[filled:])
		if n == 0 && (err == nil || err == io.EOF) {
			return buf[:filled], api.ErrConnClosed
		}
		if err != nil && err != io.EOF {
			return buf[:filled], fmt.Errorf("read request: %w", err)
		}
		prev := filled
		filled += n
		end = FindDelimiter(buf[:filled], prev)
	}

	written := 0
	for written < len(Response) {
		n, err := rw.Write(Response[written:])
		if err != nil {
			return buf[:end], fmt.Errorf("write response: %w", err)
		}
		if n == 0 {
			return buf[:end], api.ErrConnClosed
		}
		written += n
	}

	if f, ok := rw.(flusher); ok {
		if err := f.Flush(); err != nil {
			return buf[:end], fmt.Errorf("flush response: %w", err)
		}
	}
	return buf[:end], nil
}
