// Package canlog reads candump text logs, one frame per line:
//
//	(1680000000.123456) can0 2B4#AABBCCDD
//
// Lines that do not parse (blank lines, comments, malformed records,
// odd-length payload hex) are skipped, never fatal. CAN FD lines
// (double hash plus a flags nibble) decode like classic frames; remote
// frames carry no payload and are skipped.
package canlog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/canmill/types"
)

// ParseLine parses one candump text line.
// Returns false for any line that does not carry a decodable frame.
func ParseLine(line string) (types.Frame, bool) {
	line = strings.TrimSpace(line)
	if len(line) == 0 || line[0] != '(' {
		return types.Frame{}, false
	}

	end := strings.IndexByte(line, ')')
	if end < 0 {
		return types.Frame{}, false
	}
	ts, err := strconv.ParseFloat(line[1:end], 64)
	if err != nil {
		return types.Frame{}, false
	}

	rest := strings.TrimSpace(line[end+1:])
	sep := strings.IndexAny(rest, " \t")
	if sep < 0 {
		return types.Frame{}, false
	}
	bus := rest[:sep]
	body := strings.TrimSpace(rest[sep+1:])

	hash := strings.IndexByte(body, '#')
	if hash <= 0 {
		return types.Frame{}, false
	}
	idHex := body[:hash]
	payloadHex := body[hash+1:]

	// FD frames: "ID##F<data>" where F is a flags nibble
	if strings.HasPrefix(payloadHex, "#") {
		if len(payloadHex) < 2 {
			return types.Frame{}, false
		}
		payloadHex = payloadHex[2:]
	}
	// Remote frames have no payload to decode
	if strings.HasPrefix(payloadHex, "R") {
		return types.Frame{}, false
	}
	// Tolerate trailing annotations after the payload
	if cut := strings.IndexAny(payloadHex, " \t"); cut >= 0 {
		payloadHex = payloadHex[:cut]
	}

	id64, err := strconv.ParseUint(idHex, 16, 32)
	if err != nil {
		return types.Frame{}, false
	}
	id := uint32(id64)
	if id&types.ExtendedFlag != 0 {
		id &= types.MaxExtendedID
	}

	data, err := hex.DecodeString(payloadHex)
	if err != nil {
		return types.Frame{}, false
	}

	return types.Frame{ID: id, Timestamp: ts, Data: data, Bus: bus}, true
}

// Scanner reads frames from a candump log one at a time.
type Scanner struct {
	scanner *bufio.Scanner
	closers []io.Closer
	skipped int64
}

// NewScanner reads candump lines from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Open opens a candump log file. Files ending in .gz are decompressed
// transparently.
func Open(path string) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	s := NewScanner(f)
	s.closers = []io.Closer{f}

	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip log: %w", err)
		}
		s.scanner = bufio.NewScanner(zr)
		s.closers = []io.Closer{zr, f}
	}

	return s, nil
}

// Next returns the next frame, or io.EOF when the log is exhausted.
// Undecodable lines are skipped and counted; blank lines are skipped
// silently.
func (s *Scanner) Next() (types.Frame, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		frame, ok := ParseLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				s.skipped++
			}
			continue
		}
		return frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return types.Frame{}, fmt.Errorf("read log: %w", err)
	}
	return types.Frame{}, io.EOF
}

// Skipped returns the number of non-blank lines discarded so far.
func (s *Scanner) Skipped() int64 {
	return s.skipped
}

// Close releases the underlying file handles, if any.
func (s *Scanner) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
