package sources

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// ScanFunc consumes a whole source. It is called again from scratch if the
// iterator fails to decode with the current encoding.
type ScanFunc func(enc Encoding, it RowIterator) error

// Scan reads src with each encoding in turn until fn completes without a read
// error. Errors that fn produces itself are returned immediately. When every
// encoding fails the error wraps apperrors.ErrUnreadableInput.
func Scan(ctx context.Context, src Source, encodings []Encoding, fn ScanFunc) (Encoding, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}

	var lastErr error
	for _, enc := range encodings {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		it, err := src.Open(ctx, enc)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoColumns) {
				return "", fmt.Errorf("%s: %w", src.Identity(), err)
			}
			lastErr = err
			continue
		}

		tracked := &trackingIterator{inner: it}
		err = fn(enc, tracked)
		closeErr := it.Close()
		if err == nil {
			if closeErr != nil {
				return enc, fmt.Errorf("close %s: %w", src.Identity(), closeErr)
			}
			return enc, nil
		}
		if tracked.readErr == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		lastErr = tracked.readErr
	}

	return "", fmt.Errorf("%w: %s: %v", apperrors.ErrUnreadableInput, src.Identity(), lastErr)
}

// trackingIterator remembers the first non-EOF read error.
type trackingIterator struct {
	inner   RowIterator
	readErr error
}

func (t *trackingIterator) Columns() []string { return t.inner.Columns() }
func (t *trackingIterator) Close() error      { return nil }

func (t *trackingIterator) Next() (models.Row, error) {
	row, err := t.inner.Next()
	if err != nil && !errors.Is(err, io.EOF) && t.readErr == nil {
		t.readErr = err
	}
	return row, err
}
