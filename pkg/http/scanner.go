package http

import (
	"bytes"
	"fmt"
	"strconv"
)

const contentLengthHeader = "Content-Length"

var crlf = []byte("\r\n")

// Response is the part of an HTTP response head needed to stream a body.
type Response struct {
	StatusCode    int
	BodyOffset    int   // index into the scan buffer where the body begins
	ContentLength int64 // declared body length
	Buffered      int   // body bytes already in the scan buffer
}

// BodyComplete reports whether the buffered bytes already cover the declared length.
func (r Response) BodyComplete() bool {
	return int64(r.Buffered) >= r.ContentLength
}

// Scanner incrementally parses a response head out of a fixed-size buffer.
// Bytes are appended with Free/Advance (or Write) and Scan is called after
// every append; lines already consumed are never parsed again. The buffer
// never grows.
type Scanner struct {
	buf []byte
	n   int
	pos int // start of the first unscanned line

	statusCode int
	haveStatus bool

	contentLength int64
	haveLength    bool

	bodyOffset int
	headerDone bool
}

// NewScanner creates a scanner over buf. buf is owned by the scanner until
// Scan reports done; afterwards the caller may reuse it.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

// Free returns the unused tail of the buffer for the next read.
func (s *Scanner) Free() []byte {
	return s.buf[s.n:]
}

// Advance records that n bytes were read into the slice returned by Free.
func (s *Scanner) Advance(n int) {
	if n < 0 || s.n+n > len(s.buf) {
		panic("http: scanner advanced past buffer")
	}
	s.n += n
}

// Write appends p to the buffer. It fails with ErrBufferExhausted when p does not fit.
func (s *Scanner) Write(p []byte) (int, error) {
	n := copy(s.Free(), p)
	s.n += n
	if n < len(p) {
		return n, ErrBufferExhausted
	}
	return n, nil
}

// Len returns the number of buffered bytes.
func (s *Scanner) Len() int {
	return s.n
}

// Full reports whether the buffer has no room left.
func (s *Scanner) Full() bool {
	return s.n == len(s.buf)
}

// Body returns the body bytes buffered after the head.
func (s *Scanner) Body() []byte {
	if !s.headerDone {
		return nil
	}
	return s.buf[s.bodyOffset:s.n]
}

// Scan consumes any complete lines and reports whether the status code,
// Content-Length and the end of the head are all known. A full buffer that
// still has not produced them yields ErrBufferExhausted.
func (s *Scanner) Scan() (Response, bool, error) {
	if !s.headerDone {
		if err := s.scanLines(); err != nil {
			return Response{}, false, err
		}
	}

	if s.headerDone && !s.haveLength {
		return Response{}, false, ErrMissingLength
	}

	if !s.headerDone {
		if s.Full() {
			return Response{}, false, fmt.Errorf("%w: %d bytes", ErrBufferExhausted, len(s.buf))
		}
		return Response{}, false, nil
	}

	return Response{
		StatusCode:    s.statusCode,
		BodyOffset:    s.bodyOffset,
		ContentLength: s.contentLength,
		Buffered:      s.n - s.bodyOffset,
	}, true, nil
}

func (s *Scanner) scanLines() error {
	for !s.headerDone {
		end := bytes.Index(s.buf[s.pos:s.n], crlf)
		if end < 0 {
			return nil
		}

		line := s.buf[s.pos : s.pos+end]
		s.pos += end + len(crlf)

		if !s.haveStatus {
			code, err := parseStatusLine(line)
			if err != nil {
				return err
			}

			s.statusCode = code
			s.haveStatus = true

			continue
		}

		if len(line) == 0 {
			s.bodyOffset = s.pos
			s.headerDone = true

			return nil
		}

		if err := s.parseHeaderLine(line); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scanner) parseHeaderLine(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return nil
	}

	name := bytes.TrimRight(line[:colon], " \t")
	if !bytes.EqualFold(name, []byte(contentLengthHeader)) {
		return nil
	}

	value := bytes.Trim(line[colon+1:], " \t")

	length, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil || length < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidLength, value)
	}

	if s.haveLength && length != s.contentLength {
		return fmt.Errorf("%w: conflicting values %d and %d", ErrInvalidLength, s.contentLength, length)
	}

	s.contentLength = length
	s.haveLength = true

	return nil
}

// parseStatusLine extracts the code between the first and second space; it
// must be exactly three digits.
func parseStatusLine(line []byte) (int, error) {
	first := bytes.IndexByte(line, ' ')
	if first < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}

	code := line[first+1:]

	second := bytes.IndexByte(code, ' ')
	if second < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}

	code = code[:second]

	if len(code) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}

	n := 0
	for _, c := range code {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
		}
		n = n*10 + int(c-'0')
	}

	return n, nil
}
