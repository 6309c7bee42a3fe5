// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bartek5186/parts2woo/internal/catalog"
	conf "github.com/bartek5186/parts2woo/internal/config"
	"github.com/bartek5186/parts2woo/internal/db"
	"github.com/bartek5186/parts2woo/internal/enrich"
	"github.com/bartek5186/parts2woo/internal/fetch"
	"github.com/bartek5186/parts2woo/internal/publisher"
	"github.com/bartek5186/parts2woo/internal/scrape"
	"github.com/bartek5186/parts2woo/internal/source"
	"github.com/bartek5186/parts2woo/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage – które etapy uruchomić dla katalogu.
type Stage uint8

const (
	StageScrape Stage = 1 << iota
	StagePublish

	StageAll = StageScrape | StagePublish
)

var (
	ErrUnknownSource = errors.New("unknown source")
	// ErrNoPages – żadna strona katalogu nie została pobrana, snapshot zostaje bez zmian.
	ErrNoPages = errors.New("no catalog page fetched")
)

// Deps – zależności współdzielone przez wszystkie katalogi przebiegu.
// Woo i Ledger mogą być nil (sam scrape / bez deduplikacji).
type Deps struct {
	Fetcher    *fetch.Fetcher
	Translator enrich.Translator
	Store      *store.Store
	Woo        publisher.Client
	Ledger     *db.Ledger
}

// ScrapeReport – scrape + wzbogacenie jednego katalogu.
type ScrapeReport struct {
	Catalog string
	Scrape  scrape.Stats
	Enrich  enrich.Stats
}

type Syncer struct {
	log     zerolog.Logger // logowanie
	deps    Deps
	mu      sync.Mutex   // ochrona sekcji krytycznych
	cfg     *conf.Config // aktualna konfiguracja
	running bool         // czy pętla działa
	cancel  context.CancelFunc
	wg      sync.WaitGroup // śledzi goroutines
	ticks   uint64         // licznik przebiegów
}

func New(log zerolog.Logger, cfg *conf.Config, deps Deps) *Syncer {
	return &Syncer{log: log, cfg: cfg, deps: deps}
}

func (s *Syncer) config() *conf.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// sources zwraca wszystkie źródła albo jedno wskazane.
func (s *Syncer) sources(only string) ([]conf.SourceConfig, error) {
	cfg := s.config()
	if only == "" {
		return cfg.Sources, nil
	}
	src, ok := cfg.Source(only)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, only)
	}
	return []conf.SourceConfig{src}, nil
}

// Run uruchamia wybrane etapy dla każdego katalogu po kolei. Błąd jednego
// katalogu nie zatrzymuje pozostałych; zwracany jest errors.Join.
func (s *Syncer) Run(ctx context.Context, stages Stage, only string) error {
	srcs, err := s.sources(only)
	if err != nil {
		return err
	}
	var errs []error
	for _, src := range srcs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if stages&StageScrape != 0 {
			if _, err := s.Scrape(ctx, src); err != nil {
				s.log.Error().Err(err).Str("catalog", src.Catalog).Msg("scrape stage failed")
				errs = append(errs, err)
				continue
			}
		}
		if stages&StagePublish != 0 {
			if _, err := s.Publish(ctx, src); err != nil {
				s.log.Error().Err(err).Str("catalog", src.Catalog).Msg("publish stage failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Scrape: paginator -> normalizacja -> wzbogacenie -> zapis snapshotu.
func (s *Syncer) Scrape(ctx context.Context, src conf.SourceConfig) (ScrapeReport, error) {
	cfg := s.config()
	log := s.log.With().Str("catalog", src.Catalog).Str("adapter", src.Adapter).Logger()
	started := time.Now()
	rep := ScrapeReport{Catalog: src.Catalog}

	adapter, err := source.New(src.Adapter, source.Deps{
		Log:     log,
		Fetcher: s.deps.Fetcher,
		Options: src.Options,
	})
	if err != nil {
		return rep, err
	}

	sc := scrape.New(log, adapter, scrape.Options{
		MaxPages:               cfg.PagesFor(src),
		Delay:                  time.Duration(cfg.Scrape.DelayMillis) * time.Millisecond,
		FetchRetries:           cfg.Scrape.FetchRetries,
		OnFetchError:           scrape.Policy(cfg.Scrape.OnFetchError),
		MaxConsecutiveFailures: cfg.Scrape.MaxConsecutiveFailures,
	})
	res := sc.Run(ctx, src.Catalog, src.Root)
	rep.Scrape = res.Stats

	// niepełny wynik nie nadpisuje poprzedniego snapshotu
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("scrape %s interrupted: %w", src.Catalog, err)
	}
	if res.Stats.Pages == 0 && res.Stats.FailedPages > 0 {
		return rep, fmt.Errorf("%w: %s (%d failed)", ErrNoPages, src.Catalog, res.Stats.FailedPages)
	}

	en := s.enricher(log, cfg)
	products, est := en.EnrichAll(ctx, res.Products)
	rep.Enrich = est

	if err := s.deps.Store.Save(src.Catalog, products); err != nil {
		return rep, fmt.Errorf("save catalog %s: %w", src.Catalog, err)
	}

	s.saveRun(ctx, log, db.RunReport{
		CatalogID:  src.Catalog,
		Stage:      "scrape",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Total:      res.Stats.Fragments,
		Ok:         est.Enriched - est.Degraded,
		Degraded:   est.Degraded,
		Failed:     res.Stats.FailedPages,
		Skipped:    res.Stats.Skipped + res.Stats.Duplicates,
	}, rep)

	log.Info().
		Int("pages", res.Stats.Pages).
		Int("failed_pages", res.Stats.FailedPages).
		Int("scraped", res.Stats.Scraped).
		Int("degraded", est.Degraded).
		Dur("took", time.Since(started)).
		Msg("catalog scraped")
	return rep, nil
}

// Publish wczytuje snapshot katalogu i wysyła go do sklepu.
func (s *Syncer) Publish(ctx context.Context, src conf.SourceConfig) (publisher.Summary, error) {
	log := s.log.With().Str("catalog", src.Catalog).Logger()
	if s.deps.Woo == nil {
		return publisher.Summary{}, errors.New("woocommerce client not configured")
	}
	started := time.Now()

	products, err := s.deps.Store.Load(src.Catalog)
	if err != nil {
		return publisher.Summary{}, err
	}

	sum := s.publisher(log, s.config()).PublishAll(ctx, src.Catalog, products)

	s.saveRun(ctx, log, db.RunReport{
		CatalogID:  src.Catalog,
		Stage:      "publish",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Total:      sum.Total,
		Ok:         sum.Ok,
		Degraded:   sum.Degraded,
		Failed:     sum.Failed,
		Skipped:    sum.Skipped + sum.Cancelled,
	}, summaryDetails(sum))
	return sum, nil
}

// Reconcile odbudowuje ledger z produktów w sklepie.
func (s *Syncer) Reconcile(ctx context.Context, only string) (publisher.ReconcileStats, error) {
	if s.deps.Woo == nil {
		return publisher.ReconcileStats{}, errors.New("woocommerce client not configured")
	}
	if only != "" {
		if _, err := s.sources(only); err != nil {
			return publisher.ReconcileStats{}, err
		}
	}
	return s.publisher(s.log, s.config()).Reconcile(ctx, only)
}

func (s *Syncer) enricher(log zerolog.Logger, cfg *conf.Config) *enrich.Enricher {
	e := cfg.Enrich
	price := enrich.NewPriceConfig(e.Rate, e.Markup, e.Currency, e.DecimalSep, e.GroupSep)
	return enrich.New(log, s.deps.Translator, price, enrich.Options{
		SourceLang: e.SourceLang,
		TargetLang: e.TargetLang,
		Workers:    e.Workers,
	})
}

func (s *Syncer) publisher(log zerolog.Logger, cfg *conf.Config) *publisher.Publisher {
	e := cfg.Enrich
	price := enrich.NewPriceConfig(e.Rate, e.Markup, e.Currency, e.DecimalSep, e.GroupSep)

	// typed nil w interfejsie wyglądałby na skonfigurowany ledger
	var ledger publisher.Ledger
	if s.deps.Ledger != nil {
		ledger = s.deps.Ledger
	}
	w := cfg.WooCommerce
	return publisher.New(log, s.deps.Woo, s.deps.Fetcher, ledger, price.Numeric, publisher.Config{
		CategoryID:    w.CategoryID,
		MaxImages:     w.MaxImages,
		ContentType:   w.ImageContentType,
		Concurrency:   w.Concurrency,
		RequirePhotos: w.RequirePhotos,
	})
}

type publishDetails struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Cancelled int      `json:"cancelled"`
	Uploaded  int      `json:"media_uploaded"`
	Dropped   int      `json:"media_dropped"`
	Failed    []string `json:"failed,omitempty"`
}

func summaryDetails(sum publisher.Summary) publishDetails {
	d := publishDetails{
		Created:   sum.Created,
		Updated:   sum.Updated,
		Cancelled: sum.Cancelled,
		Uploaded:  sum.Uploaded,
		Dropped:   sum.Dropped,
	}
	for _, r := range sum.Results {
		if r.Outcome.Status == catalog.StatusFailed && !r.Skipped {
			d.Failed = append(d.Failed, r.Href)
		}
	}
	return d
}

// saveRun zapisuje raport etapu, jeśli ledger jest włączony.
func (s *Syncer) saveRun(ctx context.Context, log zerolog.Logger, r db.RunReport, details any) {
	if s.deps.Ledger == nil {
		return
	}
	r.RunID = uuid.NewString()
	if b, err := json.Marshal(details); err == nil {
		r.Details = string(b)
	}
	if err := s.deps.Ledger.SaveRun(context.WithoutCancel(ctx), r); err != nil {
		log.Warn().Err(err).Str("stage", r.Stage).Msg("run report not saved")
		return
	}
	log.Debug().Str("run_id", r.RunID).Str("stage", r.Stage).Msg("run report saved")
}

// --- tryb daemon ---

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.ticks = 0
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval()).Msg("Syncer: start")
	go s.loop(ctx)
	return nil
}

// Stop czeka aż bieżący przebieg się skończy.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Syncer: stop")
}

// Wait blokuje do zakończenia pętli (np. po anulowaniu ctx przekazanego do Start).
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) UpdateConfig(cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.log.Info().Msg("Syncer: config zaktualizowany")
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Ticks – liczba zakończonych przebiegów od startu.
func (s *Syncer) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.cfg.SyncIntervalSeconds > 0 {
		return time.Duration(s.cfg.SyncIntervalSeconds) * time.Second
	}
	return time.Hour
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// pierwszy przebieg od razu
	s.tickOnce(ctx)

	current := s.interval()
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Syncer: koniec pętli")
			return
		case <-ticker.C:
			s.tickOnce(ctx)
			// interwał mógł się zmienić po UpdateConfig
			if next := s.interval(); next != current {
				current = next
				ticker.Reset(current)
			}
		}
	}
}

func (s *Syncer) tickOnce(ctx context.Context) {
	n := s.Ticks() + 1
	s.log.Info().Uint64("tick", n).Msg("Syncer: przebieg start")
	if err := s.Run(ctx, StageAll, ""); err != nil {
		s.log.Error().Err(err).Uint64("tick", n).Msg("Syncer: przebieg z błędami")
	}
	s.mu.Lock()
	s.ticks = n
	s.mu.Unlock()
}
