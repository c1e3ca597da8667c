// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/oops"
)

// Error codes.
const (
	CodeWriteFailed = "JOURNAL_WRITE_FAILED"
	CodeReadFailed  = "JOURNAL_READ_FAILED"
	CodeClosed      = "JOURNAL_CLOSED"
)

const maxLine = 8 * 1024 * 1024

// File writes entries as zstd-compressed JSON lines.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

var _ Journal = (*File)(nil)

// Create opens a new journal file at path, truncating any existing one.
func Create(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.Code(CodeWriteFailed).With("path", path).Wrapf(err, "create journal directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, oops.Code(CodeWriteFailed).With("path", path).Wrapf(err, "open journal")
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, oops.Code(CodeWriteFailed).With("path", path).Wrapf(err, "create encoder")
	}
	return &File{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// Path returns the file the journal writes to.
func (j *File) Path() string { return j.path }

// Record appends e as one JSON line.
func (j *File) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.w == nil {
		return oops.Code(CodeClosed).With("path", j.path).Errorf("journal closed")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return oops.Code(CodeWriteFailed).With("path", j.path).Wrapf(err, "marshal entry")
	}
	if _, err := j.w.Write(b); err != nil {
		return oops.Code(CodeWriteFailed).With("path", j.path).Wrap(err)
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return oops.Code(CodeWriteFailed).With("path", j.path).Wrap(err)
	}
	recorded.WithLabelValues(string(e.Direction)).Inc()
	return nil
}

// Close flushes and closes the file. The journal is only complete once
// closed.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.w == nil {
		return nil
	}
	flushErr := j.w.Flush()
	encErr := j.enc.Close()
	fileErr := j.f.Close()
	j.w, j.enc, j.f = nil, nil, nil
	if err := errors.Join(flushErr, encErr, fileErr); err != nil {
		return oops.Code(CodeWriteFailed).With("path", j.path).Wrapf(err, "close journal")
	}
	return nil
}

// Read decodes a compressed journal stream, calling fn for each entry in
// order. A non-nil error from fn stops the read and is returned.
func Read(r io.Reader, fn func(Entry) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return oops.Code(CodeReadFailed).Wrapf(err, "create decoder")
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return oops.Code(CodeReadFailed).With("line", line).Wrapf(err, "decode entry")
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return oops.Code(CodeReadFailed).With("line", line).Wrapf(err, "read journal")
	}
	return nil
}

// ReadFile reads the journal at path.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code(CodeReadFailed).With("path", path).Wrapf(err, "open journal")
	}
	defer f.Close() //nolint:errcheck // read-only
	return Read(f, fn)
}
