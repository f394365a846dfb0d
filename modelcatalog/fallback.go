package modelcatalog

import (
	"context"
	"errors"

	"github.com/skosovsky/chatbridge"
)

type fallback []Source

// Fallback returns a Source that asks each source in order and returns the first success.
// If every source fails the errors are joined.
func Fallback(sources ...Source) Source {
	return fallback(sources)
}

func (f fallback) Models(ctx context.Context) ([]chatbridge.ModelInfo, error) {
	var errs []error
	for _, s := range f {
		models, err := s.Models(ctx)
		if err == nil {
			return models, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("modelcatalog: no sources")
	}
	return nil, errors.Join(errs...)
}
