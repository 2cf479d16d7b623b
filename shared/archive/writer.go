package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Writer writes JSON lines to a segment, compressed according to the file
// extension the same way Open reads it.
type Writer struct {
	f     *os.File
	buf   *bufio.Writer
	zw    io.WriteCloser
	Lines int
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)

	var zw io.WriteCloser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		zw, err = xz.NewWriter(buf)
	case ".gz":
		zw = gzip.NewWriter(buf)
	case ".zst":
		zw, err = zstd.NewWriter(buf)
	default:
		zw = nopWriteCloser{buf}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	return &Writer{f: f, buf: buf, zw: zw}, nil
}

// WriteLine appends one record. line must not contain a newline.
func (w *Writer) WriteLine(line []byte) error {
	if _, err := w.zw.Write(line); err != nil {
		return err
	}
	if _, err := w.zw.Write([]byte{'\n'}); err != nil {
		return err
	}
	w.Lines++
	return nil
}

// Close flushes the compressor and the file. The segment is not complete
// until Close returns nil.
func (w *Writer) Close() error {
	err := w.zw.Close()
	if err == nil {
		err = w.buf.Flush()
	}
	return errors.Join(err, w.f.Close())
}
