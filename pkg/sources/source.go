// Package sources discovers tabular input files and reads them as decoded rows.
package sources

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-ingest/pkg/retry"
)

// SupportedExtensions are the file suffixes Discover picks up.
var SupportedExtensions = []string{".csv", ".tsv", ".txt"}

// Source is one tabular input. Identity is stable across runs and is what
// tables, caches and watermarks are keyed by.
type Source interface {
	Identity() string
	Path() string
	// Fingerprint changes whenever the content may have changed.
	Fingerprint() string
	Size() int64
	Open(ctx context.Context, enc Encoding) (RowIterator, error)
}

// ============================================================================
// FileSource
// ============================================================================

// FileSource is a delimited text file on disk.
type FileSource struct {
	identity string
	path     string
	size     int64
	modTime  time.Time
	retryCfg *retry.Config
}

// NewFileSource stats path and returns a source whose identity is path relative to root.
func NewFileSource(root, path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	identity, err := filepath.Rel(root, path)
	if err != nil {
		identity = filepath.Base(path)
	}
	return &FileSource{
		identity: filepath.ToSlash(identity),
		path:     path,
		size:     info.Size(),
		modTime:  info.ModTime(),
		retryCfg: retry.DefaultConfig(),
	}, nil
}

func (s *FileSource) Identity() string { return s.identity }
func (s *FileSource) Path() string     { return s.path }
func (s *FileSource) Size() int64      { return s.size }

func (s *FileSource) Fingerprint() string {
	return fmt.Sprintf("%d-%d", s.size, s.modTime.UnixNano())
}

// Open opens the file, retrying transient I/O failures, and decodes it as enc.
func (s *FileSource) Open(ctx context.Context, enc Encoding) (RowIterator, error) {
	f, err := retry.DoIfRetryable(ctx, s.retryCfg, func() (*os.File, error) {
		return os.Open(s.path)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.identity, err)
	}

	delimiter, err := sniffDelimiter(f, s.path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind %s: %w", s.identity, err)
	}

	decoded, err := NewDecodingReader(f, enc)
	if err != nil {
		f.Close()
		return nil, err
	}
	it, err := newCSVIterator(decoded, f, delimiter)
	if err != nil {
		f.Close()
		return nil, err
	}
	return it, nil
}

// ============================================================================
// In-memory sources
// ============================================================================

// BytesSource is raw file content handed over without a path.
type BytesSource struct {
	identity  string
	data      []byte
	delimiter rune
}

// NewBytesSource creates a source over raw bytes. The delimiter is sniffed from the first line.
func NewBytesSource(identity string, data []byte) *BytesSource {
	delim, _ := sniffDelimiter(bytes.NewReader(data), identity)
	return &BytesSource{identity: identity, data: data, delimiter: delim}
}

func (s *BytesSource) Identity() string { return s.identity }
func (s *BytesSource) Path() string     { return s.identity }
func (s *BytesSource) Size() int64      { return int64(len(s.data)) }

func (s *BytesSource) Fingerprint() string {
	sum := sha256.Sum256(s.data)
	return hex.EncodeToString(sum[:])
}

func (s *BytesSource) Open(_ context.Context, enc Encoding) (RowIterator, error) {
	decoded, err := NewDecodingReader(bytes.NewReader(s.data), enc)
	if err != nil {
		return nil, err
	}
	return newCSVIterator(decoded, nil, s.delimiter)
}

// MemorySource is a table that has already been decoded into strings.
// Every encoding yields the same rows.
type MemorySource struct {
	identity string
	columns  []string
	rows     [][]string
}

func NewMemorySource(identity string, columns []string, rows [][]string) *MemorySource {
	return &MemorySource{identity: identity, columns: columns, rows: rows}
}

func (s *MemorySource) Identity() string { return s.identity }
func (s *MemorySource) Path() string     { return s.identity }

func (s *MemorySource) Size() int64 {
	var n int64
	for _, row := range s.rows {
		for _, v := range row {
			n += int64(len(v))
		}
	}
	return n
}

func (s *MemorySource) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.Join(s.columns, "\x1f")))
	for _, row := range s.rows {
		h.Write([]byte{'\x1e'})
		h.Write([]byte(strings.Join(row, "\x1f")))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *MemorySource) Open(_ context.Context, _ Encoding) (RowIterator, error) {
	return &sliceIterator{columns: s.columns, rows: s.rows}, nil
}

// ============================================================================
// Discovery
// ============================================================================

// Discover walks root and returns every supported file as a source, sorted by identity.
func Discover(ctx context.Context, root string) ([]Source, error) {
	var found []Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSupported(d.Name()) {
			return nil
		}
		src, err := NewFileSource(root, path)
		if err != nil {
			return err
		}
		found = append(found, src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover sources in %s: %w", root, err)
	}
	SortSources(found)
	return found, nil
}

// SortSources orders sources by identity.
func SortSources(list []Source) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Identity() < list[j].Identity()
	})
}

func isSupported(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// sniffDelimiter picks the most frequent candidate delimiter on the first line.
// A .tsv suffix always means tab.
func sniffDelimiter(r io.Reader, name string) (rune, error) {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t', nil
	}
	br := bufio.NewReader(io.LimitReader(r, 64*1024))
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read first line of %s: %w", name, err)
	}

	best, bestCount := ',', 0
	for _, c := range []rune{',', '\t', ';', '|'} {
		if n := strings.Count(line, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best, nil
}
