// Package publisher wysyła wzbogacone produkty do WooCommerce: najpierw
// zdjęcia do biblioteki mediów, potem jeden POST/PUT produktu.
package publisher

import (
	"context"
	"maps"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/db"
	"github.com/bartek5186/parts2woo/internal/observability"
	"github.com/bartek5186/parts2woo/internal/woocommerce"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonMedia     = "media"
	ReasonProduct   = "product"
	ReasonStaleLink = "stale_link"
	ReasonCancelled = "cancelled"
)

// Client – część API WooCommerce, której używa publisher.
type Client interface {
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (woocommerce.Media, error)
	CreateProduct(ctx context.Context, in woocommerce.ProductInput) (woocommerce.Product, error)
	UpdateProduct(ctx context.Context, id int64, in woocommerce.ProductInput) (woocommerce.Product, error)
	EachProductPage(ctx context.Context, perPage int, fields string, fn func(page int, items []woocommerce.Product) error) error
}

// Downloader pobiera surowe bajty zdjęcia (2xx wymagane).
type Downloader interface {
	Bytes(ctx context.Context, url string) ([]byte, error)
}

// Ledger – opcjonalna pamięć href -> produkt/media.
type Ledger interface {
	Lookup(ctx context.Context, catalogID, href string) (db.ProductLink, bool, error)
	Record(ctx context.Context, link db.ProductLink) error
	Forget(ctx context.Context, catalogID, href string) error
}

type Config struct {
	CategoryID    int64
	MaxImages     int // limit prób uploadu na produkt, 0 = bez limitu
	ContentType   string
	Concurrency   int
	RequirePhotos bool
}

type Publisher struct {
	log     zerolog.Logger
	client  Client
	dl      Downloader
	ledger  Ledger
	numeric func(string) string
	cfg     Config
}

// New: ledger może być nil (bez deduplikacji między przebiegami), numeric
// zamienia sformatowaną cenę na wartość dla regular_price.
func New(log zerolog.Logger, client Client, dl Downloader, ledger Ledger, numeric func(string) string, cfg Config) *Publisher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/jpeg"
	}
	return &Publisher{log: log, client: client, dl: dl, ledger: ledger, numeric: numeric, cfg: cfg}
}

// Result – wynik jednego rekordu.
type Result struct {
	Href      string
	ProductID int64
	Updated   bool
	Skipped   bool
	Uploaded  int
	Dropped   int
	Outcome   catalog.Outcome
}

// Summary – podsumowanie publikacji katalogu.
type Summary struct {
	Total     int
	Ok        int
	Degraded  int
	Failed    int
	Skipped   int
	Cancelled int
	Created   int
	Updated   int
	Uploaded  int
	Dropped   int
	Results   []Result
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Uploaded += r.Uploaded
	s.Dropped += r.Dropped
	switch {
	case r.Skipped && hasReason(r.Outcome, ReasonCancelled):
		s.Cancelled++
	case r.Skipped:
		s.Skipped++
	case r.Outcome.IsFailed():
		s.Failed++
	default:
		if r.Outcome.IsDegraded() {
			s.Degraded++
		} else {
			s.Ok++
		}
		if r.Updated {
			s.Updated++
		} else {
			s.Created++
		}
	}
}

func hasReason(o catalog.Outcome, reason string) bool {
	for _, r := range o.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Publish przeprowadza jeden rekord przez fazę mediów i fazę produktu.
// Nigdy nie zwraca błędu; wynik niesie Outcome.
func (p *Publisher) Publish(ctx context.Context, catalogID string, e catalog.EnrichedProduct) Result {
	log := p.log.With().Str("catalog", catalogID).Str("href", e.SourceHref).Logger()
	res := Result{Href: e.SourceHref, Outcome: catalog.Ok()}

	if p.cfg.RequirePhotos && len(e.PhotoURLs) == 0 {
		log.Info().Msg("brak zdjęć – pomijam produkt")
		res.Skipped = true
		observability.ProductsPublished.WithLabelValues("skipped").Inc()
		return res
	}

	var (
		link  db.ProductLink
		known bool
	)
	if p.ledger != nil {
		var err error
		link, known, err = p.ledger.Lookup(ctx, catalogID, e.SourceHref)
		if err != nil {
			log.Warn().Err(err).Msg("ledger lookup failed, publishing as new")
			known = false
		}
	}
	media := map[string]int64{}
	if known {
		media = link.Media()
	}

	in := p.Map(catalogID, e, media)
	images, uploaded := p.uploadImages(ctx, log, in.Images, &res)
	in.Images = images
	maps.Copy(media, uploaded)

	var (
		prod woocommerce.Product
		err  error
	)
	if known && link.WooID > 0 {
		res.Updated = true
		prod, err = p.client.UpdateProduct(ctx, link.WooID, in)
		if woocommerce.IsNotFound(err) {
			log.Warn().Int64("woo_id", link.WooID).Msg("produkt usunięty w sklepie, zapominam link")
			p.forgetProduct(ctx, log, catalogID, e, media)
			res.Outcome = catalog.Failed(ReasonStaleLink)
			observability.ProductsPublished.WithLabelValues("failed").Inc()
			return res
		}
	} else {
		prod, err = p.client.CreateProduct(ctx, in)
	}
	if err != nil {
		log.Error().Err(err).Bool("update", res.Updated).Msg("publish failed")
		// wysłane media zostają w ledgerze
		if len(uploaded) > 0 {
			p.record(ctx, log, catalogID, e, link.WooID, media)
		}
		res.Outcome = catalog.Failed(ReasonProduct)
		observability.ProductsPublished.WithLabelValues("failed").Inc()
		return res
	}
	res.ProductID = prod.ID

	p.record(ctx, log, catalogID, e, prod.ID, media)

	observability.ProductsPublished.WithLabelValues(res.Outcome.Status.String()).Inc()
	log.Info().
		Int64("woo_id", prod.ID).
		Bool("update", res.Updated).
		Int("uploaded", res.Uploaded).
		Int("dropped", res.Dropped).
		Str("outcome", res.Outcome.String()).
		Msg("product published")
	return res
}

// uploadImages – faza mediów, sekwencyjnie. MaxImages to liczba miejsc na
// zdjęcia w kolejności ze źródła: wpis z id i każda próba uploadu {src}
// zajmuje jedno miejsce, reszta jest odrzucana.
// Zwraca obrazki do payloadu i nowe mapowania url -> id.
func (p *Publisher) uploadImages(ctx context.Context, log zerolog.Logger, images []woocommerce.Image, res *Result) ([]woocommerce.Image, map[string]int64) {
	out := make([]woocommerce.Image, 0, len(images))
	uploaded := map[string]int64{}
	slots := 0

	for _, img := range images {
		if p.cfg.MaxImages > 0 && slots >= p.cfg.MaxImages {
			break
		}
		slots++
		if img.ID > 0 {
			out = append(out, woocommerce.Image{ID: img.ID})
			continue
		}

		id, err := p.uploadOne(ctx, img.Src)
		if err != nil {
			log.Warn().Err(err).Str("photo", img.Src).Msg("photo dropped")
			observability.MediaUploads.WithLabelValues("failed").Inc()
			res.Dropped++
			if !hasReason(res.Outcome, ReasonMedia) {
				res.Outcome.Degrade(ReasonMedia)
			}
			continue
		}
		observability.MediaUploads.WithLabelValues("ok").Inc()
		res.Uploaded++
		uploaded[img.Src] = id
		out = append(out, woocommerce.Image{ID: id})
	}
	return out, uploaded
}

// record zapisuje link w ledgerze; wooID 0 = produktu w sklepie jeszcze nie ma.
func (p *Publisher) record(ctx context.Context, log zerolog.Logger, catalogID string, e catalog.EnrichedProduct, wooID int64, media map[string]int64) {
	if p.ledger == nil {
		return
	}
	rec := db.ProductLink{
		CatalogID:  catalogID,
		SourceHref: e.SourceHref,
		WooID:      wooID,
		Name:       e.TranslatedName,
		Price:      e.ConvertedPrice,
	}
	rec.SetMedia(media)
	if err := p.ledger.Record(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("ledger record failed")
	}
}

// forgetProduct usuwa id produktu z linku. Znane media zostają.
func (p *Publisher) forgetProduct(ctx context.Context, log zerolog.Logger, catalogID string, e catalog.EnrichedProduct, media map[string]int64) {
	if len(media) > 0 {
		p.record(ctx, log, catalogID, e, 0, media)
		return
	}
	if err := p.ledger.Forget(ctx, catalogID, e.SourceHref); err != nil {
		log.Error().Err(err).Msg("ledger forget failed")
	}
}

func (p *Publisher) uploadOne(ctx context.Context, photoURL string) (int64, error) {
	data, err := p.dl.Bytes(ctx, photoURL)
	if err != nil {
		return 0, err
	}
	m, err := p.client.UploadMedia(ctx, Filename(photoURL), p.cfg.ContentType, data)
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

// PublishAll publikuje katalog, najwyżej Concurrency rekordów naraz.
// Rozpoczęty rekord kończy się mimo anulowania ctx; nowe nie startują.
func (p *Publisher) PublishAll(ctx context.Context, catalogID string, products []catalog.EnrichedProduct) Summary {
	results := make([]Result, len(products))
	started := make([]bool, len(products))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i := range products {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			results[i] = p.Publish(context.WithoutCancel(ctx), catalogID, products[i])
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Total: len(products)}
	for i := range products {
		if !started[i] {
			results[i] = Result{
				Href:    products[i].SourceHref,
				Skipped: true,
				Outcome: catalog.Failed(ReasonCancelled),
			}
		}
		sum.add(results[i])
	}

	p.log.Info().
		Str("catalog", catalogID).
		Int("total", sum.Total).
		Int("ok", sum.Ok).
		Int("degraded", sum.Degraded).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Int("cancelled", sum.Cancelled).
		Int("created", sum.Created).
		Int("updated", sum.Updated).
		Int("media_uploaded", sum.Uploaded).
		Int("media_dropped", sum.Dropped).
		Msg("publish finished")
	return sum
}
