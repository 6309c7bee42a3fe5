package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/db"
	"github.com/bartek5186/parts2woo/internal/enrich"
	"github.com/bartek5186/parts2woo/internal/woocommerce"
	"github.com/rs/zerolog"
)

type fakeWoo struct {
	mu         sync.Mutex
	uploads    []string
	created    []woocommerce.ProductInput
	updated    map[int64]woocommerce.ProductInput
	failMedia  map[string]bool
	failCreate bool
	missing    map[int64]bool
	nextID     int64
	remote     []woocommerce.Product
	block      chan struct{}
	active     int32
	peak       int32
}

func newFakeWoo() *fakeWoo {
	return &fakeWoo{updated: map[int64]woocommerce.ProductInput{}, failMedia: map[string]bool{}, missing: map[int64]bool{}, nextID: 100}
}

func (f *fakeWoo) UploadMedia(_ context.Context, filename, contentType string, data []byte) (woocommerce.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	if f.failMedia[filename] {
		return woocommerce.Media{}, &woocommerce.APIError{Method: "POST", URL: "/media", StatusCode: 500}
	}
	f.nextID++
	return woocommerce.Media{ID: f.nextID}, nil
}

func (f *fakeWoo) CreateProduct(_ context.Context, in woocommerce.ProductInput) (woocommerce.Product, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return woocommerce.Product{}, &woocommerce.APIError{Method: "POST", URL: "/products", StatusCode: 400}
	}
	f.created = append(f.created, in)
	f.nextID++
	return woocommerce.Product{ID: f.nextID, Name: in.Name}, nil
}

func (f *fakeWoo) UpdateProduct(_ context.Context, id int64, in woocommerce.ProductInput) (woocommerce.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return woocommerce.Product{}, &woocommerce.APIError{Method: "PUT", URL: "/products", StatusCode: http.StatusNotFound}
	}
	f.updated[id] = in
	return woocommerce.Product{ID: id, Name: in.Name}, nil
}

func (f *fakeWoo) EachProductPage(_ context.Context, perPage int, _ string, fn func(int, []woocommerce.Product) error) error {
	for page, start := 1, 0; start < len(f.remote); page, start = page+1, start+perPage {
		if err := fn(page, f.remote[start:min(start+perPage, len(f.remote))]); err != nil {
			return err
		}
	}
	return nil
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (d *fakeDownloader) Bytes(_ context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	if d.fail[url] {
		return nil, errors.New("GET " + url + ": http 404")
	}
	return []byte("img:" + url), nil
}

type memLedger struct {
	mu    sync.Mutex
	links map[string]db.ProductLink
	fail  bool
}

func newMemLedger() *memLedger { return &memLedger{links: map[string]db.ProductLink{}} }

func (m *memLedger) Lookup(_ context.Context, catalogID, href string) (db.ProductLink, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return db.ProductLink{}, false, errors.New("db locked")
	}
	l, ok := m.links[catalogID+"|"+href]
	return l, ok, nil
}

func (m *memLedger) Record(_ context.Context, link db.ProductLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.CatalogID+"|"+link.SourceHref] = link
	return nil
}

func (m *memLedger) Forget(_ context.Context, catalogID, href string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, catalogID+"|"+href)
	return nil
}

func product(href string, photos ...string) catalog.EnrichedProduct {
	return catalog.EnrichedProduct{
		SourceName:     "Фара",
		SourcePriceRaw: "1 250 RUB",
		PhotoURLs:      photos,
		TranslatedName: "Fara",
		ConvertedPrice: "42,75 AZN",
		SourceHref:     href,
		SourceCode:     "LR1",
	}
}

func photos(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://shop.example/img/%d.jpg", i)
	}
	return out
}

func newTestPublisher(woo *fakeWoo, dl *fakeDownloader, ledger Ledger, cfg Config) *Publisher {
	price := enrich.NewPriceConfig(0.0171, 2, "AZN", ",", " ")
	return New(zerolog.Nop(), woo, dl, ledger, price.Numeric, cfg)
}

func TestMap(t *testing.T) {
	p := newTestPublisher(newFakeWoo(), &fakeDownloader{}, nil, Config{CategoryID: 196})
	e := product("https://shop.example/p/1", "https://shop.example/a.jpg", "https://shop.example/b.jpg")

	in := p.Map("rr", e, map[string]int64{"https://shop.example/b.jpg": 9})
	if in.Name != "Fara" || in.Type != "simple" || in.RegularPrice != "42.75" {
		t.Errorf("basic fields = %+v", in)
	}
	if in.Description != "<p>Fara - CODE: LR1</p>" {
		t.Errorf("Description = %q", in.Description)
	}
	if !strings.Contains(in.ShortDescription, "<a href='https://shop.example/p/1'> link </a>") {
		t.Errorf("ShortDescription = %q", in.ShortDescription)
	}
	if len(in.Categories) != 1 || in.Categories[0].ID != 196 {
		t.Errorf("Categories = %+v", in.Categories)
	}
	if len(in.Images) != 2 || in.Images[0].Src != "https://shop.example/a.jpg" || in.Images[1].ID != 9 || in.Images[1].Src != "" {
		t.Errorf("Images = %+v", in.Images)
	}
	if len(in.MetaData) != 2 || in.MetaData[0].Key != MetaSourceHref || in.MetaData[0].Value != "https://shop.example/p/1" {
		t.Errorf("MetaData = %+v", in.MetaData)
	}

	e.ConvertedPrice = ""
	if got := p.Map("rr", e, nil).RegularPrice; got != "" {
		t.Errorf("RegularPrice without price = %q", got)
	}
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example/upload/iblock/a1/photo.jpg": "photo.jpg",
		"https://cdn.example/upload/photo%20big.jpg?x=1": "photo big.jpg",
		"https://cdn.example/":                           defaultFilename,
		"https://cdn.example":                            defaultFilename,
	}
	for in, want := range cases {
		if got := Filename(in); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPublishCapsUploads(t *testing.T) {
	woo := newFakeWoo()
	dl := &fakeDownloader{}
	p := newTestPublisher(woo, dl, nil, Config{MaxImages: 4})

	res := p.Publish(context.Background(), "rr", product("https://shop.example/p/1", photos(7)...))
	if !res.Outcome.IsOk() {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(woo.uploads) != 4 || len(dl.calls) != 4 || res.Uploaded != 4 {
		t.Fatalf("uploads=%d downloads=%d", len(woo.uploads), len(dl.calls))
	}
	if len(woo.created) != 1 || len(woo.created[0].Images) != 4 {
		t.Fatalf("created = %+v", woo.created)
	}
	for _, img := range woo.created[0].Images {
		if img.ID == 0 || img.Src != "" {
			t.Fatalf("payload image not uploaded: %+v", img)
		}
	}
}

func TestPublishCapCountsFailedAttempts(t *testing.T) {
	woo := newFakeWoo()
	ph := photos(6)
	dl := &fakeDownloader{fail: map[string]bool{ph[1]: true}}
	woo.failMedia["2.jpg"] = true
	p := newTestPublisher(woo, dl, nil, Config{MaxImages: 4})

	res := p.Publish(context.Background(), "rr", product("https://shop.example/p/1", ph...))
	if !res.Outcome.IsDegraded() || res.Outcome.Reasons[0] != ReasonMedia {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	// 4 próby: 0 ok, 1 download fail, 2 upload fail, 3 ok
	if len(dl.calls) != 4 || res.Uploaded != 2 || res.Dropped != 2 {
		t.Fatalf("downloads=%d uploaded=%d dropped=%d", len(dl.calls), res.Uploaded, res.Dropped)
	}
	if len(woo.created) != 1 || len(woo.created[0].Images) != 2 {
		t.Fatalf("images in payload = %+v", woo.created)
	}
}

func TestPublishUnlimitedImages(t *testing.T) {
	woo := newFakeWoo()
	p := newTestPublisher(woo, &fakeDownloader{}, nil, Config{MaxImages: 0})
	p.Publish(context.Background(), "rr", product("h", photos(9)...))
	if len(woo.uploads) != 9 {
		t.Fatalf("uploads = %d, want 9", len(woo.uploads))
	}
}

func TestPublishKnownMediaNotUploaded(t *testing.T) {
	woo := newFakeWoo()
	dl := &fakeDownloader{}
	ledger := newMemLedger()
	ph := photos(3)
	link := db.ProductLink{CatalogID: "rr", SourceHref: "https://shop.example/p/1"}
	link.SetMedia(map[string]int64{ph[0]: 11, ph[1]: 12, ph[2]: 13})
	_ = ledger.Record(context.Background(), link)

	p := newTestPublisher(woo, dl, ledger, Config{MaxImages: 4})
	res := p.Publish(context.Background(), "rr", product("https://shop.example/p/1", ph...))

	if len(woo.uploads) != 0 || len(dl.calls) != 0 {
		t.Fatalf("uploads=%d downloads=%d, want 0", len(woo.uploads), len(dl.calls))
	}
	if !res.Outcome.IsOk() || len(woo.created) != 1 || len(woo.created[0].Images) != 3 {
		t.Fatalf("res=%+v created=%+v", res, woo.created)
	}
}

func TestPublishProductFailure(t *testing.T) {
	woo := newFakeWoo()
	woo.failCreate = true
	ledger := newMemLedger()
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{})

	res := p.Publish(context.Background(), "rr", product("h", photos(1)...))
	if !res.Outcome.IsFailed() || res.Outcome.Reasons[0] != ReasonProduct {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	link, ok, _ := ledger.Lookup(context.Background(), "rr", "h")
	if !ok || link.WooID != 0 || len(link.Media()) != 1 {
		t.Fatalf("link = %+v, %v", link, ok)
	}

	// kolejny przebieg tworzy produkt z już wysłanym zdjęciem
	woo.failCreate = false
	res = p.Publish(context.Background(), "rr", product("h", photos(1)...))
	if !res.Outcome.IsOk() || res.Updated || len(woo.uploads) != 1 {
		t.Fatalf("res = %+v uploads=%d", res, len(woo.uploads))
	}
}

func TestPublishProductFailureWithoutMediaNotRecorded(t *testing.T) {
	woo := newFakeWoo()
	woo.failCreate = true
	woo.failMedia["0.jpg"] = true
	ledger := newMemLedger()
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{})

	if res := p.Publish(context.Background(), "rr", product("h", photos(1)...)); !res.Outcome.IsFailed() {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(ledger.links) != 0 {
		t.Fatalf("links = %+v", ledger.links)
	}
}

func TestRepublishKeepsImageCap(t *testing.T) {
	woo := newFakeWoo()
	ledger := newMemLedger()
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{MaxImages: 4})
	ctx := context.Background()
	e := product("https://shop.example/p/1", photos(6)...)

	first := p.Publish(ctx, "rr", e)
	if first.Uploaded != 4 {
		t.Fatalf("first uploaded = %d", first.Uploaded)
	}
	second := p.Publish(ctx, "rr", e)
	if !second.Updated || second.Uploaded != 0 || len(woo.uploads) != 4 {
		t.Fatalf("second = %+v uploads=%d", second, len(woo.uploads))
	}
	upd, ok := woo.updated[first.ProductID]
	if !ok || len(upd.Images) != 4 {
		t.Fatalf("updated = %+v", woo.updated)
	}
	for _, img := range upd.Images {
		if img.ID == 0 {
			t.Fatalf("update payload uploads again: %+v", img)
		}
	}
}

func TestPublishRequirePhotos(t *testing.T) {
	woo := newFakeWoo()
	p := newTestPublisher(woo, &fakeDownloader{}, nil, Config{RequirePhotos: true})
	res := p.Publish(context.Background(), "rr", product("h"))
	if !res.Skipped || len(woo.created) != 0 {
		t.Fatalf("res = %+v", res)
	}

	p = newTestPublisher(woo, &fakeDownloader{}, nil, Config{RequirePhotos: false})
	if res := p.Publish(context.Background(), "rr", product("h")); res.Skipped || len(woo.created) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestPublishUpdatesKnownProduct(t *testing.T) {
	woo := newFakeWoo()
	ledger := newMemLedger()
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{MaxImages: 4})
	ctx := context.Background()
	e := product("https://shop.example/p/1", photos(2)...)

	first := p.Publish(ctx, "rr", e)
	if first.Updated || first.ProductID == 0 {
		t.Fatalf("first = %+v", first)
	}

	second := p.Publish(ctx, "rr", e)
	if !second.Updated || second.ProductID != first.ProductID {
		t.Fatalf("second = %+v", second)
	}
	if len(woo.created) != 1 || len(woo.updated) != 1 {
		t.Fatalf("created=%d updated=%d", len(woo.created), len(woo.updated))
	}
	// media z pierwszego przebiegu użyte ponownie
	if len(woo.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(woo.uploads))
	}
}

func TestPublishStaleLinkForgotten(t *testing.T) {
	woo := newFakeWoo()
	woo.missing[55] = true
	ledger := newMemLedger()
	_ = ledger.Record(context.Background(), db.ProductLink{CatalogID: "rr", SourceHref: "h", WooID: 55})
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{})

	res := p.Publish(context.Background(), "rr", product("h", photos(1)...))
	if !res.Outcome.IsFailed() || res.Outcome.Reasons[0] != ReasonStaleLink {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	// id produktu zapomniane, wysłane zdjęcie zostaje
	link, ok, _ := ledger.Lookup(context.Background(), "rr", "h")
	if !ok || link.WooID != 0 || len(link.Media()) != 1 {
		t.Fatalf("link = %+v, %v", link, ok)
	}

	// następny przebieg tworzy produkt od nowa
	if res := p.Publish(context.Background(), "rr", product("h", photos(1)...)); res.Updated || !res.Outcome.IsOk() {
		t.Fatalf("republish = %+v", res)
	}
	if len(woo.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(woo.uploads))
	}
}

func TestPublishStaleLinkWithoutMediaDeleted(t *testing.T) {
	woo := newFakeWoo()
	woo.missing[55] = true
	ledger := newMemLedger()
	_ = ledger.Record(context.Background(), db.ProductLink{CatalogID: "rr", SourceHref: "h", WooID: 55})
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{RequirePhotos: false})

	res := p.Publish(context.Background(), "rr", product("h"))
	if !res.Outcome.IsFailed() || res.Outcome.Reasons[0] != ReasonStaleLink {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if _, ok, _ := ledger.Lookup(context.Background(), "rr", "h"); ok {
		t.Fatal("stale link kept")
	}
}

func TestPublishLedgerErrorFallsBackToCreate(t *testing.T) {
	woo := newFakeWoo()
	ledger := newMemLedger()
	ledger.fail = true
	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{})
	if res := p.Publish(context.Background(), "rr", product("h", photos(1)...)); !res.Outcome.IsOk() || len(woo.created) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestPublishAllSummary(t *testing.T) {
	woo := newFakeWoo()
	ph := photos(2)
	dl := &fakeDownloader{fail: map[string]bool{ph[1]: true}}
	p := newTestPublisher(woo, dl, nil, Config{Concurrency: 3, RequirePhotos: true})

	products := []catalog.EnrichedProduct{
		product("h1", ph[0]),
		product("h2", ph...),
		product("h3"),
		product("h4", ph[0]),
	}
	sum := p.PublishAll(context.Background(), "rr", products)
	if sum.Total != 4 || sum.Ok != 2 || sum.Degraded != 1 || sum.Skipped != 1 || sum.Failed != 0 || sum.Created != 3 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Uploaded != 3 || sum.Dropped != 1 || len(sum.Results) != 4 {
		t.Fatalf("media summary = %+v", sum)
	}
}

func TestPublishAllConcurrencyBound(t *testing.T) {
	woo := newFakeWoo()
	woo.block = make(chan struct{})
	p := newTestPublisher(woo, &fakeDownloader{}, nil, Config{Concurrency: 2})

	var products []catalog.EnrichedProduct
	for i := range 6 {
		products = append(products, product(fmt.Sprintf("h%d", i), photos(1)...))
	}
	done := make(chan Summary)
	go func() { done <- p.PublishAll(context.Background(), "rr", products) }()

	time.Sleep(50 * time.Millisecond)
	close(woo.block)
	sum := <-done
	if sum.Ok != 6 {
		t.Fatalf("summary = %+v", sum)
	}
	if peak := atomic.LoadInt32(&woo.peak); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPublishAllCancellationFinishesStarted(t *testing.T) {
	woo := newFakeWoo()
	woo.block = make(chan struct{})
	p := newTestPublisher(woo, &fakeDownloader{}, nil, Config{Concurrency: 1})

	var products []catalog.EnrichedProduct
	for i := range 5 {
		products = append(products, product(fmt.Sprintf("h%d", i), photos(1)...))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Summary)
	go func() { done <- p.PublishAll(ctx, "rr", products) }()

	// pierwszy rekord wisi w CreateProduct
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&woo.active) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	close(woo.block)
	sum := <-done

	if sum.Ok != 1 || sum.Cancelled != 4 || len(woo.created) != 1 {
		t.Fatalf("summary = %+v created=%d", sum, len(woo.created))
	}
}

func TestReconcile(t *testing.T) {
	woo := newFakeWoo()
	meta := func(href, cat string) []woocommerce.MetaData {
		return []woocommerce.MetaData{{Key: MetaSourceHref, Value: href}, {Key: MetaCatalog, Value: cat}}
	}
	woo.remote = []woocommerce.Product{
		{ID: 1, Name: "a", MetaData: meta("h1", "rr")},
		{ID: 2, Name: "b", MetaData: meta("h2", "rr")},
		{ID: 3, Name: "c", MetaData: meta("h3", "def")},
		{ID: 4, Name: "manual"},
	}
	ledger := newMemLedger()
	prev := db.ProductLink{CatalogID: "rr", SourceHref: "h1", WooID: 99}
	prev.SetMedia(map[string]int64{"x.jpg": 5})
	_ = ledger.Record(context.Background(), prev)

	p := newTestPublisher(woo, &fakeDownloader{}, ledger, Config{})
	st, err := p.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if st.Products != 4 || st.Linked != 3 || st.Unlinked != 1 {
		t.Fatalf("stats = %+v", st)
	}
	l, _, _ := ledger.Lookup(context.Background(), "rr", "h1")
	if l.WooID != 1 || l.Media()["x.jpg"] != 5 {
		t.Fatalf("h1 link = %+v", l)
	}

	st, err = p.Reconcile(context.Background(), "def")
	if err != nil || st.Linked != 1 {
		t.Fatalf("filtered reconcile = %+v, %v", st, err)
	}
}

func TestReconcileWithoutLedger(t *testing.T) {
	p := newTestPublisher(newFakeWoo(), &fakeDownloader{}, nil, Config{})
	if _, err := p.Reconcile(context.Background(), ""); !errors.Is(err, ErrNoLedger) {
		t.Fatalf("err = %v", err)
	}
}
