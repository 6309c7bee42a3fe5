package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, from, to string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[text] {
		return "", errors.New("translator down")
	}
	return fmt.Sprintf("%s[%s>%s]", text, from, to), nil
}

func newTestEnricher(tr Translator) *Enricher {
	return New(zerolog.Nop(), tr, defaultPrice(), Options{SourceLang: "ru", TargetLang: "az", Workers: 3})
}

func TestEnrichOk(t *testing.T) {
	e := newTestEnricher(&fakeTranslator{})
	p := catalog.ScrapedProduct{Name: "Диск тормозной", PriceRaw: "1 250 RUB", Href: "https://shop/p/1", PhotoURLs: []string{"https://shop/1.jpg"}}

	out, oc := e.Enrich(context.Background(), p)
	if !oc.IsOk() {
		t.Fatalf("outcome = %s, want ok", oc)
	}
	if out.TranslatedName != "Диск тормозной[ru>az]" {
		t.Errorf("TranslatedName = %q", out.TranslatedName)
	}
	if out.ConvertedPrice != "42,75 AZN" {
		t.Errorf("ConvertedPrice = %q", out.ConvertedPrice)
	}
	if out.SourceName != p.Name || out.SourceHref != p.Href || len(out.PhotoURLs) != 1 {
		t.Errorf("source fields not carried: %+v", out)
	}
}

func TestEnrichTranslationFailureKeepsName(t *testing.T) {
	e := newTestEnricher(&fakeTranslator{fail: map[string]bool{"Фара": true}})

	out, oc := e.Enrich(context.Background(), catalog.ScrapedProduct{Name: "Фара", PriceRaw: "100", Href: "h"})
	if !oc.IsDegraded() {
		t.Fatalf("outcome = %s, want degraded", oc)
	}
	if out.TranslatedName != "Фара" {
		t.Errorf("TranslatedName = %q, want source name", out.TranslatedName)
	}
	if out.ConvertedPrice == "" {
		t.Error("price should still be converted")
	}
}

func TestEnrichPriceWithoutDigits(t *testing.T) {
	e := newTestEnricher(Identity{})

	out, oc := e.Enrich(context.Background(), catalog.ScrapedProduct{Name: "Бампер", PriceRaw: "по запросу", Href: "h"})
	if !oc.IsDegraded() || oc.Reasons[0] != ReasonPrice {
		t.Fatalf("outcome = %s, want degraded: price", oc)
	}
	if out.ConvertedPrice != "" {
		t.Errorf("ConvertedPrice = %q, want empty", out.ConvertedPrice)
	}
}

func TestEnrichAllKeepsOrder(t *testing.T) {
	tr := &fakeTranslator{fail: map[string]bool{"p3": true}}
	e := newTestEnricher(tr)

	var in []catalog.ScrapedProduct
	for i := range 20 {
		in = append(in, catalog.ScrapedProduct{Name: fmt.Sprintf("p%d", i), PriceRaw: "10", Href: fmt.Sprintf("h%d", i)})
	}
	in[5].PriceRaw = "-"

	out, st := e.EnrichAll(context.Background(), in)
	if len(out) != len(in) {
		t.Fatalf("got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].SourceHref != in[i].Href {
			t.Fatalf("order broken at %d: %s", i, out[i].SourceHref)
		}
	}
	if st.Enriched != 20 || st.Degraded != 2 || st.TranslationFailed != 1 || st.PriceMissing != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if tr.calls != 20 {
		t.Fatalf("translator calls = %d", tr.calls)
	}
}

func TestOpenAITranslate(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"model":"gpt-4o-mini"`) {
			gotModel = "gpt-4o-mini"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  Əyləc diski \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	tr := NewOpenAIWithConfig(cfg, "gpt-4o-mini")

	got, err := tr.Translate(context.Background(), "Диск тормозной", "ru", "az")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Əyləc diski" {
		t.Fatalf("Translate = %q", got)
	}
	if gotModel != "gpt-4o-mini" {
		t.Fatalf("model not sent")
	}
}

func TestOpenAITranslateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	if _, err := NewOpenAIWithConfig(cfg, "").Translate(context.Background(), "Фара", "ru", "az"); err == nil {
		t.Fatal("expected error")
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	ttl  time.Duration
	err  error
}

func (m *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func TestCachedTranslator(t *testing.T) {
	next := &fakeTranslator{}
	cache := &mapCache{data: map[string]string{}}
	tr := NewCached(zerolog.Nop(), next, cache, time.Hour)

	for range 3 {
		got, err := tr.Translate(context.Background(), "Фара", "ru", "az")
		if err != nil || got != "Фара[ru>az]" {
			t.Fatalf("Translate = %q, %v", got, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("next called %d times, want 1", next.calls)
	}
	if cache.ttl != time.Hour {
		t.Fatalf("ttl = %v", cache.ttl)
	}

	// inny język docelowy = inny klucz
	if _, err := tr.Translate(context.Background(), "Фара", "ru", "en"); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Fatalf("next called %d times, want 2", next.calls)
	}
}

func TestCachedTranslatorIgnoresCacheErrors(t *testing.T) {
	next := &fakeTranslator{}
	tr := NewCached(zerolog.Nop(), next, &mapCache{err: errors.New("redis down")}, time.Hour)

	got, err := tr.Translate(context.Background(), "Фара", "ru", "az")
	if err != nil || got != "Фара[ru>az]" {
		t.Fatalf("Translate = %q, %v", got, err)
	}
}
