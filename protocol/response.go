// File: protocol/response.go
// Author: momentics <momentics@gmail.com>
//
// Fixed response and request delimiter detection.

package protocol

import "bytes"

// Delimiter marks the end of a request.
var Delimiter = []byte("\r\n\r\n")

// Response is the only output the server produces. The Content-Length line ends
// with a bare LF.
var Response = []byte("HTTP/1.1 200 OK\r\n" +
	"Content-Length: 12\n" +
	"Connection: close\r\n\r\n" +
	"Hello world!")

// ResponseBody is the payload announced by Content-Length.
const ResponseBody = "Hello world!"

// FindDelimiter looks for the first delimiter in buf that contains at least
// one byte at or after offset from, i.e. one completed by bytes received since
// the previous scan. It returns the length of the request including the
// delimiter, or -1 when there is none.
//
// Scanning restarts len(Delimiter)-1 bytes before from so a delimiter split
// across two reads is still found.
func FindDelimiter(buf []byte, from int) int {
	start := from - (len(Delimiter) - 1)
	if start < 0 {
		start = 0
	}
	if start >= len(buf) {
		return -1
	}
	i := bytes.Index(buf[start:], Delimiter)
	if i < 0 {
		return -1
	}
	return start + i + len(Delimiter)
}
