package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// ErrSuspectEncoding is returned when decoded text is structurally implausible
// (NUL bytes in the header), which indicates the wrong encoding was chosen.
var ErrSuspectEncoding = errors.New("decoded text contains NUL bytes")

// RowIterator yields the rows of one source in order. Next returns io.EOF after the last row.
type RowIterator interface {
	Columns() []string
	Next() (models.Row, error)
	Close() error
}

// csvIterator reads delimited text.
type csvIterator struct {
	reader  *csv.Reader
	closer  io.Closer
	columns []string
	rowNum  int64
}

func newCSVIterator(r io.Reader, closer io.Closer, delimiter rune) (*csvIterator, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.ErrNoColumns
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	nonEmpty := 0
	for i, h := range header {
		if strings.ContainsRune(h, 0) {
			return nil, ErrSuspectEncoding
		}
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if columns[i] != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return nil, apperrors.ErrNoColumns
	}

	return &csvIterator{
		reader:  reader,
		closer:  closer,
		columns: columns,
	}, nil
}

func (it *csvIterator) Columns() []string {
	return it.columns
}

func (it *csvIterator) Next() (models.Row, error) {
	for {
		record, err := it.reader.Read()
		if err != nil {
			return models.Row{}, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue // blank line
		}
		it.rowNum++
		return models.Row{
			Number:  it.rowNum,
			Columns: it.columns,
			Values:  record,
		}, nil
	}
}

func (it *csvIterator) Close() error {
	if it.closer == nil {
		return nil
	}
	return it.closer.Close()
}

// sliceIterator serves rows that are already in memory.
type sliceIterator struct {
	columns []string
	rows    [][]string
	pos     int
}

func (it *sliceIterator) Columns() []string {
	return it.columns
}

func (it *sliceIterator) Next() (models.Row, error) {
	if it.pos >= len(it.rows) {
		return models.Row{}, io.EOF
	}
	values := it.rows[it.pos]
	it.pos++
	return models.Row{
		Number:  int64(it.pos),
		Columns: it.columns,
		Values:  values,
	}, nil
}

func (it *sliceIterator) Close() error {
	return nil
}
