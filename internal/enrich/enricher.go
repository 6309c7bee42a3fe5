package enrich

import (
	"context"
	"strings"
	"sync"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonTranslation = "translation"
	ReasonPrice       = "price"
)

type Options struct {
	SourceLang string
	TargetLang string
	Workers    int
}

// Stats – ile rekordów dostało wartość zastępczą.
type Stats struct {
	Enriched          int
	Degraded          int
	TranslationFailed int
	PriceMissing      int
}

type Enricher struct {
	log   zerolog.Logger
	tr    Translator
	price PriceConfig
	opts  Options
}

func New(log zerolog.Logger, tr Translator, price PriceConfig, opts Options) *Enricher {
	if tr == nil {
		tr = Identity{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Enricher{log: log, tr: tr, price: price, opts: opts}
}

// Price zwraca konfigurację ceny (publisher potrzebuje Numeric).
func (e *Enricher) Price() PriceConfig { return e.price }

// Enrich nigdy nie zwraca błędu: nieudane tłumaczenie zostawia oryginalną
// nazwę, cena bez cyfr daje pusty ConvertedPrice.
func (e *Enricher) Enrich(ctx context.Context, p catalog.ScrapedProduct) (catalog.EnrichedProduct, catalog.Outcome) {
	out := catalog.NewEnriched(p)
	outcome := catalog.Ok()

	var (
		wg         sync.WaitGroup
		translated string
		trErr      error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		translated, trErr = e.tr.Translate(ctx, p.Name, e.opts.SourceLang, e.opts.TargetLang)
	}()

	out.ConvertedPrice = e.price.Convert(p.PriceRaw)
	wg.Wait()

	if trErr != nil || strings.TrimSpace(translated) == "" {
		outcome.Degrade(ReasonTranslation)
		observability.EnrichDegraded.WithLabelValues(ReasonTranslation).Inc()
		e.log.Warn().Err(trErr).Str("href", p.Href).Str("name", p.Name).Msg("translation failed, keeping source name")
	} else {
		out.TranslatedName = translated
	}

	if out.ConvertedPrice == "" {
		outcome.Degrade(ReasonPrice)
		observability.EnrichDegraded.WithLabelValues(ReasonPrice).Inc()
		e.log.Warn().Str("href", p.Href).Str("price_raw", p.PriceRaw).Msg("price not convertible, left empty")
	}
	return out, outcome
}

// EnrichAll wzbogaca rekordy równolegle (max Workers naraz), kolejność wyniku
// = kolejność wejścia.
func (e *Enricher) EnrichAll(ctx context.Context, products []catalog.ScrapedProduct) ([]catalog.EnrichedProduct, Stats) {
	out := make([]catalog.EnrichedProduct, len(products))
	outcomes := make([]catalog.Outcome, len(products))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := range products {
		g.Go(func() error {
			out[i], outcomes[i] = e.Enrich(ctx, products[i])
			return nil
		})
	}
	_ = g.Wait()

	st := Stats{Enriched: len(out)}
	for _, o := range outcomes {
		if o.IsDegraded() {
			st.Degraded++
		}
		for _, r := range o.Reasons {
			switch r {
			case ReasonTranslation:
				st.TranslationFailed++
			case ReasonPrice:
				st.PriceMissing++
			}
		}
	}
	e.log.Info().
		Int("enriched", st.Enriched).
		Int("degraded", st.Degraded).
		Int("translation_failed", st.TranslationFailed).
		Int("price_missing", st.PriceMissing).
		Msg("enrichment finished")
	return out, st
}
