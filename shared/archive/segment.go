// Package archive reads and writes IPAWS archive segments: files of JSON
// lines, each carrying one CAP document in its originalMessage field.
package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
	"github.com/ulikunitz/xz"
)

const (
	// DefaultPattern matches segments in any supported compression.
	DefaultPattern = "IpawsArchivedAlerts_*.jsonl*"

	MessageField = "originalMessage"

	maxLineBytes = 64 << 20
)

var (
	ErrInvalidJSON = errors.New("record is not valid json")
	ErrNoMessage   = fmt.Errorf("record has no string %s field", MessageField)
)

// SegmentName builds the canonical name for the nth segment of a period,
// e.g. IpawsArchivedAlerts_2023_004.jsonl.xz.
func SegmentName(period string, n int) string {
	return fmt.Sprintf("IpawsArchivedAlerts_%s_%03d.jsonl.xz", period, n)
}

// Record is one non-blank line of a segment. Line is 1-based.
type Record struct {
	Line int
	Raw  []byte
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

// Open returns a reader over the decompressed contents of path. The codec is
// chosen by extension: .xz, .gz, .zst, anything else is read as is.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	closers := []io.Closer{f}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		r, err = xz.NewReader(bufio.NewReader(f))
	case ".gz":
		var gz *gzip.Reader
		gz, err = gzip.NewReader(f)
		if err == nil {
			r = gz
			closers = append([]io.Closer{gz}, closers...)
		}
	case ".zst":
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(f)
		if err == nil {
			r = zr
			closers = append([]io.Closer{closerFunc(zr.Close)}, closers...)
		}
	default:
		r = f
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	return &readCloser{Reader: r, closers: closers}, nil
}

// Records yields every non-blank line of the segment in file order. An error
// means the file itself could not be read, and iteration stops after it.
func Records(path string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rc, err := Open(path)
		if err != nil {
			yield(Record{}, err)
			return
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
		line := 0
		for scanner.Scan() {
			line++
			b := bytes.TrimSpace(scanner.Bytes())
			if len(b) == 0 {
				continue
			}
			if !yield(Record{Line: line, Raw: bytes.Clone(b)}, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Record{}, fmt.Errorf("read %s after line %d: %w", filepath.Base(path), line, err))
		}
	}
}

// Count reads the whole segment and returns the number of records in it.
// Corrupt compression surfaces here, before anything is loaded.
func Count(path string) (int, error) {
	n := 0
	for _, err := range Records(path) {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Message pulls the raw CAP document out of one JSON line.
func Message(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", ErrInvalidJSON
	}
	v := gjson.GetBytes(raw, MessageField)
	if v.Type != gjson.String {
		return "", ErrNoMessage
	}
	return v.String(), nil
}
