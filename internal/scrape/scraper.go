package scrape

import (
	"context"
	"strings"
	"sync"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/observability"
	"github.com/bartek5186/parts2woo/internal/source"
	"github.com/rs/zerolog"
)

// Stats – podsumowanie etapu scrapowania jednego katalogu.
type Stats struct {
	Pages         int
	FailedPages   int
	Fragments     int
	Skipped       int
	Duplicates    int
	PhotoFailures int
	Scraped       int
}

type Result struct {
	Catalog  string
	Products []catalog.ScrapedProduct
	Stats    Stats
}

// Scraper przechodzi cały katalog: strony -> zdjęcia -> normalizacja.
type Scraper struct {
	log       zerolog.Logger
	adapter   source.Adapter
	paginator *Paginator
}

func New(log zerolog.Logger, adapter source.Adapter, opts Options) *Scraper {
	return &Scraper{
		log:       log,
		adapter:   adapter,
		paginator: NewPaginator(log, adapter, opts),
	}
}

// Run scrapuje root. Błąd pojedynczej strony czy zdjęcia nie przerywa
// katalogu; kolejność produktów między stronami nie jest gwarantowana.
func (s *Scraper) Run(ctx context.Context, catalogID, root string) Result {
	log := s.log.With().Str("catalog", catalogID).Logger()
	res := Result{Catalog: catalogID}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = map[string]struct{}{}
	)

	for batch := range s.paginator.Paginate(ctx, root) {
		if batch.Err != nil {
			observability.PagesTotal.WithLabelValues(catalogID, "error").Inc()
			mu.Lock()
			res.Stats.FailedPages++
			mu.Unlock()
			continue
		}
		observability.PagesTotal.WithLabelValues(catalogID, "ok").Inc()

		// strona jest przetwarzana w tle, paginator idzie dalej
		wg.Add(1)
		go func(b Batch) {
			defer wg.Done()
			photoFailures := s.resolvePhotos(ctx, log, root, b.Fragments)
			products, skipped, dups := NormalizeAll(root, b.Fragments)

			mu.Lock()
			defer mu.Unlock()
			res.Stats.Pages++
			res.Stats.Fragments += len(b.Fragments)
			res.Stats.Skipped += skipped
			res.Stats.Duplicates += dups
			res.Stats.PhotoFailures += photoFailures
			for _, p := range products {
				if _, dup := seen[p.Href]; dup {
					res.Stats.Duplicates++
					continue
				}
				seen[p.Href] = struct{}{}
				res.Products = append(res.Products, p)
			}
			if skipped > 0 {
				log.Warn().Int("page", b.Page).Int("skipped", skipped).Msg("fragments without name or link dropped")
			}
		}(batch)
	}
	wg.Wait()

	res.Stats.Scraped = len(res.Products)
	observability.ProductsScraped.WithLabelValues(catalogID).Add(float64(res.Stats.Scraped))
	log.Info().
		Int("pages", res.Stats.Pages).
		Int("failed_pages", res.Stats.FailedPages).
		Int("fragments", res.Stats.Fragments).
		Int("skipped", res.Stats.Skipped).
		Int("duplicates", res.Stats.Duplicates).
		Int("photo_failures", res.Stats.PhotoFailures).
		Int("scraped", res.Stats.Scraped).
		Msg("scrape finished")
	return res
}

// resolvePhotos dociąga zdjęcia ze stron produktów tam, gdzie listing ich nie
// podał. Jedna gorutyna na pozycję, więc sufitem jest rozmiar strony.
func (s *Scraper) resolvePhotos(ctx context.Context, log zerolog.Logger, root string, frags []catalog.Fragment) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	for i := range frags {
		f := &frags[i]
		if f.Photos != nil || strings.TrimSpace(f.Href) == "" || strings.TrimSpace(f.Name) == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			href := source.ResolveURL(root, f.Href)
			photos, err := s.adapter.Photos(ctx, href)
			if err != nil {
				log.Warn().Err(err).Str("href", href).Msg("photo resolution failed, keeping listing without photos")
				photos = []string{}
				mu.Lock()
				failures++
				mu.Unlock()
			}
			// każda gorutyna pisze tylko do swojego elementu
			f.Photos = photos
		}()
	}
	wg.Wait()
	return failures
}
