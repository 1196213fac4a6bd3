package phsio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/ulikunitz/xz"

	e "github.com/phasespace/phsp/lib/error"
)

// CompressionSuffix returns the compression suffix of path (".zst" or
// ".xz") and the path with that suffix removed. Paths without a recognized
// suffix come back unchanged with an empty suffix.
func CompressionSuffix(path string) (base, suffix string) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zst"):
		return path[:len(path)-4], ".zst"
	case strings.HasSuffix(lower, ".xz"):
		return path[:len(path)-3], ".xz"
	}
	return path, ""
}

// openStream opens path for reading, transparently decompressing it when it
// carries a compression suffix. The returned closer releases both the
// decompressor and the underlying file.
func openStream(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	_, suffix := CompressionSuffix(path)
	switch suffix {
	case ".zst":
		return &layeredCloser{zstd.NewReader(f), f}, nil
	case ".xz":
		r, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &layeredCloser{io.NopCloser(r), f}, nil
	}
	return f, nil
}

// createStream creates path for writing, compressing when the path carries
// a compression suffix.
func createStream(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	_, suffix := CompressionSuffix(path)
	switch suffix {
	case ".zst":
		return &layeredWriteCloser{zstd.NewWriter(f), f}, nil
	case ".xz":
		w, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &layeredWriteCloser{w, f}, nil
	}
	return f, nil
}

// layeredCloser closes a decompressor followed by the file underneath it.
type layeredCloser struct {
	io.ReadCloser
	under io.Closer
}

func (c *layeredCloser) Close() error {
	err := c.ReadCloser.Close()
	if err2 := c.under.Close(); err == nil {
		err = err2
	}
	return err
}

type layeredWriteCloser struct {
	io.WriteCloser
	under io.Closer
}

func (c *layeredWriteCloser) Close() error {
	err := c.WriteCloser.Close()
	if err2 := c.under.Close(); err == nil {
		err = err2
	}
	return err
}

// cursor walks a byte slice while encoding or decoding fixed-width values
// in a chosen byte order. Decoding past the end is the caller's bug, not a
// file error: record slices are length-checked before a cursor ever touches
// them, so cursor methods panic rather than return errors.
type cursor struct {
	b     []byte
	i     int
	order binary.ByteOrder
}

func (c *cursor) u32() uint32 {
	v := c.order.Uint32(c.b[c.i:])
	c.i += 4
	return v
}

func (c *cursor) i32() int32 { return int32(c.u32()) }

func (c *cursor) f32() float32 { return math.Float32frombits(c.u32()) }

func (c *cursor) i8() int8 {
	v := int8(c.b[c.i])
	c.i++
	return v
}

func (c *cursor) bool() bool {
	v := c.b[c.i] != 0
	c.i++
	return v
}

func (c *cursor) putU32(v uint32) {
	c.order.PutUint32(c.b[c.i:], v)
	c.i += 4
}

func (c *cursor) putI32(v int32) { c.putU32(uint32(v)) }

func (c *cursor) putF32(v float32) { c.putU32(math.Float32bits(v)) }

func (c *cursor) putI8(v int8) {
	c.b[c.i] = byte(v)
	c.i++
}

func (c *cursor) putBool(v bool) {
	if v {
		c.b[c.i] = 1
	} else {
		c.b[c.i] = 0
	}
	c.i++
}

func (c *cursor) putBytes(v []byte) {
	copy(c.b[c.i:], v)
	c.i += len(v)
}

// recordStream reads fixed-length records out of a (possibly decompressed)
// byte stream and tracks the byte offset of the record most recently
// handed out, which is what DecodeError reports.
type recordStream struct {
	path   string
	rc     io.ReadCloser
	br     *bufio.Reader
	recLen int
	buf    []byte
	offset int64
}

func newRecordStream(path string, rc io.ReadCloser, recLen int) *recordStream {
	return &recordStream{
		path: path, rc: rc, br: bufio.NewReaderSize(rc, 1<<16),
		recLen: recLen, buf: make([]byte, recLen),
	}
}

// next returns the bytes of one record, valid until the following call.
// A clean end of input is io.EOF; a record cut off mid-way is a
// DecodeError.
func (s *recordStream) next() ([]byte, error) {
	start := s.offset
	n, err := io.ReadFull(s.br, s.buf)
	s.offset += int64(n)
	if err == io.EOF {
		return nil, io.EOF
	} else if err == io.ErrUnexpectedEOF {
		return nil, &e.DecodeError{Path: s.path, Offset: start,
			Err: fmt.Errorf("the file ends %d bytes into a %d-byte record",
				n, s.recLen)}
	} else if err != nil {
		return nil, &e.DecodeError{Path: s.path, Offset: start, Err: err}
	}
	return s.buf, nil
}

// skip discards n leading bytes, used to step over in-stream headers.
func (s *recordStream) skip(n int) error {
	m, err := s.br.Discard(n)
	s.offset += int64(m)
	if err != nil {
		return err
	}
	return nil
}

func (s *recordStream) close() error { return s.rc.Close() }

// lineStream reads newline-delimited records for the ASCII formats, with
// the same offset accounting as recordStream.
type lineStream struct {
	path   string
	rc     io.ReadCloser
	br     *bufio.Reader
	offset int64
}

func newLineStream(path string, rc io.ReadCloser) *lineStream {
	return &lineStream{path: path, rc: rc,
		br: bufio.NewReaderSize(rc, 1<<16)}
}

// next returns the next non-empty line without its trailing newline, along
// with the byte offset it started at.
func (s *lineStream) next() (string, int64, error) {
	for {
		start := s.offset
		line, err := s.br.ReadString('\n')
		s.offset += int64(len(line))
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return "", start, io.EOF
			}
			return "", start, &e.DecodeError{Path: s.path, Offset: start,
				Err: err}
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			if err == io.EOF {
				return "", s.offset, io.EOF
			}
			continue
		}
		return trimmed, start, nil
	}
}

func (s *lineStream) close() error { return s.rc.Close() }

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// cfgFloat parses a float option, falling back to def when the key is
// absent. Unparseable values are InvalidConfiguration errors.
func cfgFloat(cfg Config, key string, def float64) (float64, error) {
	s := cfg.Get(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &e.InvalidConfiguration{Option: key,
			Reason: fmt.Sprintf("'%s' is not a number", s)}
	}
	return v, nil
}

// cfgInt parses an integer option with the same contract as cfgFloat.
func cfgInt(cfg Config, key string, def int64) (int64, error) {
	s := cfg.Get(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &e.InvalidConfiguration{Option: key,
			Reason: fmt.Sprintf("'%s' is not an integer", s)}
	}
	return v, nil
}

// byteOrderFor maps the IAEA BYTE_ORDER codes onto binary byte orders.
func byteOrderFor(code int) (binary.ByteOrder, error) {
	switch code {
	case 1234:
		return binary.LittleEndian, nil
	case 4321:
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("the byte order code %d is not recognized; only "+
		"1234 (little-endian) and 4321 (big-endian) are defined", code)
}
