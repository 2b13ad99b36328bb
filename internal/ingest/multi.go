package ingest

import (
	"context"
	"errors"

	"github.com/example/route-matching/internal/models"
)

// SearchPublisher is a closable search event sink.
type SearchPublisher interface {
	PublishSearch(ctx context.Context, ev models.SearchEvent) error
	Close() error
}

// Fanout publishes every event to each sink and joins their errors.
type Fanout []SearchPublisher

func (f Fanout) PublishSearch(ctx context.Context, ev models.SearchEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSearch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
