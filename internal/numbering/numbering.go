// Package numbering mints human-readable order numbers from an atomic sequence.
package numbering

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/apperr"
)

// Sequence hands out strictly increasing values. Each call must be a single
// atomic increment; two callers never observe the same value.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// Authority formats sequence values as prefix + zero-padded digits.
type Authority struct {
	seq    Sequence
	prefix string
	width  int
}

func NewAuthority(seq Sequence, prefix string, width int) *Authority {
	if width <= 0 {
		width = 6
	}
	return &Authority{seq: seq, prefix: prefix, width: width}
}

// Format renders n. Values wider than the configured width are not truncated.
func (a *Authority) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", a.prefix, a.width, n)
}

// Next returns a freshly minted order number.
func (a *Authority) Next(ctx context.Context) (string, error) {
	n, err := a.seq.Next(ctx)
	if err != nil {
		return "", apperr.Persistence(err, "next order number")
	}
	return a.Format(n), nil
}

// WithNumber mints a number and hands it to fn. When fn reports that the
// number is already taken, one fresh number is minted and fn runs again; a
// second conflict is returned to the caller as a fatal creation error.
func (a *Authority) WithNumber(ctx context.Context, fn func(number string) error) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		number, err := a.Next(ctx)
		if err != nil {
			return err
		}

		lastErr = fn(number)
		if lastErr == nil || !errors.Is(lastErr, apperr.ErrNumberingConflict) {
			return lastErr
		}
		log.WithFields(log.Fields{"order_number": number, "attempt": attempt}).Warn("order number already taken")
	}
	return errors.Wrap(lastErr, "order numbering retry exhausted")
}
