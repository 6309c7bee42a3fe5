package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/fetch"
	"github.com/rs/zerolog"
)

var reAuroraPage = regexp.MustCompile(`/page-(\d+)/`)

// Aurora – aurora-parts.ru. Listing nie zawiera zdjęć, trzeba wejść w produkt.
type Aurora struct {
	log   zerolog.Logger
	fetch *fetch.Fetcher

	listSel  string
	itemSel  string
	photoSel string
}

func (a *Aurora) Name() string { return "aurora" }

// PageURL: strona 1 = root, dalej root + "page-N/?list_type=".
func (a *Aurora) PageURL(root string, page int) string {
	if page <= 1 {
		return root
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return ResolveURL(root, fmt.Sprintf("page-%d/?list_type=", page))
}

func (a *Aurora) ListPage(ctx context.Context, root string, page int) (catalog.Listing, error) {
	doc, err := loadDocument(ctx, a.fetch, a.PageURL(root, page))
	if err != nil {
		return catalog.Listing{}, err
	}
	return a.parseListing(doc), nil
}

func (a *Aurora) parseListing(doc *goquery.Document) catalog.Listing {
	out := catalog.Listing{
		TotalPages: maxPageNumber(doc.Find("div.pagination a[href]"), reAuroraPage),
	}

	list := doc.Find(a.listSel).First()
	if list.Length() == 0 {
		a.log.Debug().Msg("no products list on page")
		return out
	}

	list.Find(a.itemSel).Each(func(_ int, item *goquery.Selection) {
		title := item.Find("a.item__title").First()
		href, _ := title.Attr("href")
		out.Fragments = append(out.Fragments, catalog.Fragment{
			Name:  strings.TrimSpace(title.Text()),
			Price: strings.TrimSpace(item.Find("div.item__price").First().Text()),
			Href:  href,
		})
	})
	return out
}

func (a *Aurora) Photos(ctx context.Context, href string) ([]string, error) {
	doc, err := loadDocument(ctx, a.fetch, href)
	if err != nil {
		return nil, err
	}
	return collectAttr(doc.Find(a.photoSel), "src", href), nil
}

func auroraFactory(d Deps) (Adapter, error) {
	if d.Fetcher == nil {
		return nil, fmt.Errorf("aurora: fetcher is required")
	}
	return &Aurora{
		log:      d.Log.With().Str("adapter", "aurora").Logger(),
		fetch:    d.Fetcher,
		listSel:  d.option("list_selector", "div.items-list__list.is-active"),
		itemSel:  d.option("item_selector", "div.items-list__item"),
		photoSel: d.option("photo_selector", "img.good-slider__img.js-zoom-img"),
	}, nil
}

func init() {
	Register("aurora", auroraFactory)
}
