package scrape

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/fetch"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Policy – co zrobić ze stroną, której nie udało się pobrać.
type Policy string

const (
	// PolicySkip: pusta partia z błędem, lecimy do następnej strony.
	PolicySkip Policy = "skip"
	// PolicyStop: błąd kończy katalog (jak pusta strona).
	PolicyStop Policy = "stop"
)

type Options struct {
	MaxPages               int
	Delay                  time.Duration // minimalny odstęp między żądaniami
	FetchRetries           int
	OnFetchError           Policy
	MaxConsecutiveFailures int
}

// Batch – fragmenty z jednej strony. Err != nil oznacza nieudane pobranie
// (wtedy Fragments jest puste).
type Batch struct {
	Page      int
	Fragments []catalog.Fragment
	Err       error
}

// Lister to część adaptera potrzebna do stronicowania.
type Lister interface {
	ListPage(ctx context.Context, root string, page int) (catalog.Listing, error)
}

type Paginator struct {
	log     zerolog.Logger
	lister  Lister
	opts    Options
	limiter *rate.Limiter
}

func NewPaginator(log zerolog.Logger, lister Lister, opts Options) *Paginator {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 30
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	if opts.OnFetchError == "" {
		opts.OnFetchError = PolicySkip
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Paginator{
		log:     log,
		lister:  lister,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Paginate zwraca leniwą sekwencję partii dla katalogu root. Kończy się na
// pierwszej pustej stronie, na limicie stron, po anulowaniu ctx albo
// zgodnie z polityką błędów.
func (p *Paginator) Paginate(ctx context.Context, root string) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		log := p.log.With().Str("root", root).Logger()
		bound := p.opts.MaxPages
		failures := 0

		for page := 1; page <= bound; page++ {
			if err := ctx.Err(); err != nil {
				log.Info().Int("page", page).Msg("pagination cancelled")
				return
			}

			listing, err := p.fetch(ctx, root, page)
			if err != nil {
				if ctx.Err() != nil {
					log.Info().Int("page", page).Msg("pagination cancelled")
					return
				}
				failures++
				log.Warn().Err(err).Int("page", page).Int("consecutive", failures).Msg("page fetch failed")
				if !yield(Batch{Page: page, Err: err}) {
					return
				}
				if p.opts.OnFetchError == PolicyStop {
					log.Warn().Int("page", page).Msg("stopping catalog on fetch error")
					return
				}
				if failures >= p.opts.MaxConsecutiveFailures {
					log.Warn().Int("page", page).Msg("too many failed pages in a row, stopping catalog")
					return
				}
				continue
			}
			failures = 0

			if len(listing.Fragments) == 0 {
				log.Info().Int("page", page).Msg("empty page, catalog exhausted")
				return
			}

			// wskaźnik paginacji zawęża (albo poszerza) zakres, nigdy ponad MaxPages
			if listing.TotalPages > 0 {
				bound = min(p.opts.MaxPages, max(page, listing.TotalPages))
			}

			log.Debug().Int("page", page).Int("fragments", len(listing.Fragments)).Msg("page fetched")
			if !yield(Batch{Page: page, Fragments: listing.Fragments}) {
				return
			}
		}
		log.Info().Int("pages", bound).Msg("page bound reached")
	}
}

func (p *Paginator) fetch(ctx context.Context, root string, page int) (catalog.Listing, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.FetchRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return catalog.Listing{}, err
		}
		listing, err := p.lister.ListPage(ctx, root, page)
		if err == nil {
			return listing, nil
		}
		lastErr = err

		var se *fetch.StatusError
		if errors.As(err, &se) && !se.Transient() {
			break
		}
		if attempt < p.opts.FetchRetries {
			p.log.Debug().Err(err).Int("page", page).Int("attempt", attempt+1).Msg("retrying page")
		}
	}
	return catalog.Listing{}, lastErr
}
