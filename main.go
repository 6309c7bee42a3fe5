package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	conf "github.com/bartek5186/parts2woo/internal/config"
	"github.com/bartek5186/parts2woo/internal/db"
	"github.com/bartek5186/parts2woo/internal/enrich"
	"github.com/bartek5186/parts2woo/internal/fetch"
	logs "github.com/bartek5186/parts2woo/internal/logs"
	"github.com/bartek5186/parts2woo/internal/observability"
	"github.com/bartek5186/parts2woo/internal/store"
	syncer "github.com/bartek5186/parts2woo/internal/syncer"
	"github.com/bartek5186/parts2woo/internal/woocommerce"
	"github.com/rs/zerolog"

	_ "github.com/bartek5186/parts2woo/internal/source" // rejestracja adapterów
)

var ver = "1.0.0"

const usage = `parts2woo %s

Użycie: parts2woo [-config path] [-source catalog] <komenda>

Komendy:
  scrape     pobierz katalogi, wzbogać i zapisz products_<catalog>.json
  publish    wyślij zapisane katalogi do WooCommerce
  sync       scrape + publish
  daemon     sync co sync_interval_seconds aż do SIGINT/SIGTERM
  reconcile  odbuduj ledger z produktów w sklepie
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	appDir := mustAppDataDir("parts2woo")

	fs := flag.NewFlagSet("parts2woo", flag.ExitOnError)
	cfgPath := fs.String("config", filepath.Join(appDir, "config.json"), "plik konfiguracji (.json/.yaml)")
	only := fs.String("source", "", "tylko ten katalog (id z sources[].catalog)")
	logPath := fs.String("log", filepath.Join(appDir, "app.log"), "plik logów")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), usage, ver)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one command")
	}
	cmd := fs.Arg(0)

	cfg, firstRun, err := conf.LoadOrCreate(*cfgPath)
	if err != nil {
		return err
	}

	log := logs.New(*logPath, true, cfg.LogLevel)
	if firstRun {
		log.Info().Msgf("Utworzono domyślną konfigurację: %s", *cfgPath)
	}
	log.Info().Str("version", ver).Str("command", cmd).Msg("parts2woo start")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if srv := observability.Start(cfg.MetricsPort, log); srv != nil {
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	httpClient := fetch.NewClient(fetch.Timeouts{
		Connect: time.Duration(cfg.HTTP.ConnectTimeoutSec) * time.Second,
		Read:    time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		Total:   time.Duration(cfg.HTTP.TimeoutSec) * time.Second,
	})

	st, err := store.New(cfg.Store.Dir)
	if err != nil {
		return err
	}
	deps := syncer.Deps{
		Fetcher: fetch.New(httpClient, cfg.Scrape.UserAgent),
		Store:   st,
	}

	if cfg.DB.Enabled {
		dbh, err := db.Open(cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer dbh.Close()
		if err := dbh.Migrate(); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		log.Info().Str("driver", dbh.Driver).Msg("DB ready")
		deps.Ledger = db.NewLedger(dbh.DB)
	}

	needsWoo := cmd != "scrape"
	if needsWoo {
		w := cfg.WooCommerce
		client, err := woocommerce.New(log.With().Str("component", "woocommerce").Logger(), woocommerce.Config{
			BaseURL:       w.BaseURL,
			ConsumerKey:   w.ConsumerKey,
			ConsumerSec:   w.ConsumerSec,
			MediaUser:     w.MediaUser,
			MediaPassword: w.MediaPassword,
		}, httpClient)
		if err != nil {
			return err
		}
		deps.Woo = client
	}

	if cmd == "scrape" || cmd == "sync" || cmd == "daemon" {
		tr, closeTr := buildTranslator(log, cfg)
		defer closeTr()
		deps.Translator = tr
	}

	s := syncer.New(log, cfg, deps)

	switch cmd {
	case "scrape":
		return s.Run(ctx, syncer.StageScrape, *only)
	case "publish":
		return s.Run(ctx, syncer.StagePublish, *only)
	case "sync":
		return s.Run(ctx, syncer.StageAll, *only)
	case "reconcile":
		_, err := s.Reconcile(ctx, *only)
		return err
	case "daemon":
		if *only != "" {
			return errors.New("daemon runs all sources, -source is not supported")
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		log.Info().Msgf("parts2woo %s – działa", ver)
		<-ctx.Done()
		s.Stop()
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// buildTranslator: openai (opcjonalnie z cache w Redis) albo identity.
func buildTranslator(log zerolog.Logger, cfg *conf.Config) (enrich.Translator, func()) {
	noop := func() {}
	e := cfg.Enrich
	switch e.Translator {
	case "", "none":
		return enrich.Identity{}, noop
	case "openai":
	default:
		log.Warn().Str("translator", e.Translator).Msg("nieznany translator, nazwy bez tłumaczenia")
		return enrich.Identity{}, noop
	}
	if e.OpenAIKey == "" {
		log.Warn().Msg("brak OPENAI_API_KEY, nazwy bez tłumaczenia")
		return enrich.Identity{}, noop
	}

	var tr enrich.Translator = enrich.NewOpenAI(e.OpenAIKey, e.OpenAIModel)
	if cfg.Redis.URL == "" {
		return tr, noop
	}
	cache, err := enrich.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("redis niedostępny, tłumaczenia bez cache")
		return tr, noop
	}
	ttl := time.Duration(e.CacheTTLHours) * time.Hour
	return enrich.NewCached(log, tr, cache, ttl), func() { _ = cache.Close() }
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}
