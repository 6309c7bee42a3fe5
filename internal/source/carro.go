package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/fetch"
	"github.com/rs/zerolog"
)

var reCarroPage = regexp.MustCompile(`[?&]page=(\d+)`)

// Carro – carro.by. Zdjęcia są w listingu (ukryte <img data-src>).
type Carro struct {
	log   zerolog.Logger
	fetch *fetch.Fetcher

	perPage     int
	codeSel     string
	detailPhoto string
}

func (c *Carro) Name() string { return "carro" }

// PageURL: root?page=N&per-page=M
func (c *Carro) PageURL(root string, page int) string {
	u, err := url.Parse(root)
	if err != nil {
		return root
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per-page", strconv.Itoa(c.perPage))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Carro) ListPage(ctx context.Context, root string, page int) (catalog.Listing, error) {
	pageURL := c.PageURL(root, page)
	doc, err := loadDocument(ctx, c.fetch, pageURL)
	if err != nil {
		return catalog.Listing{}, err
	}
	return c.parseListing(doc, pageURL), nil
}

func (c *Carro) parseListing(doc *goquery.Document, pageURL string) catalog.Listing {
	out := catalog.Listing{
		TotalPages: maxPageNumber(doc.Find(".pagination a[href]"), reCarroPage),
	}

	doc.Find("div.parts-list-item").Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Find("a.link-dark").First().Attr("href")

		frag := catalog.Fragment{
			Name:  strings.TrimSpace(item.Find("div.font-weight-bold.mb-0").First().Text()),
			Price: item.Find("div.price-main").First().Text(),
			Href:  href,
		}
		// brak zdjęć w listingu -> nil, scraper sięgnie do strony produktu
		if photos := collectAttr(item.Find("div.media div.d-none img"), "data-src", pageURL); len(photos) > 0 {
			frag.Photos = photos
		}
		if c.codeSel != "" {
			frag.Code = strings.TrimSpace(item.Find(c.codeSel).First().Text())
		}
		out.Fragments = append(out.Fragments, frag)
	})
	if len(out.Fragments) == 0 {
		c.log.Debug().Str("url", pageURL).Msg("no parts-list items on page")
	}
	return out
}

func (c *Carro) Photos(ctx context.Context, href string) ([]string, error) {
	doc, err := loadDocument(ctx, c.fetch, href)
	if err != nil {
		return nil, err
	}
	return collectAttr(doc.Find(c.detailPhoto), "data-src", href), nil
}

func carroFactory(d Deps) (Adapter, error) {
	if d.Fetcher == nil {
		return nil, fmt.Errorf("carro: fetcher is required")
	}
	perPage, err := strconv.Atoi(d.option("per_page", "30"))
	if err != nil || perPage <= 0 {
		return nil, fmt.Errorf("carro: invalid per_page option %q", d.Options["per_page"])
	}
	return &Carro{
		log:         d.Log.With().Str("adapter", "carro").Logger(),
		fetch:       d.Fetcher,
		perPage:     perPage,
		codeSel:     d.option("code_selector", ""),
		detailPhoto: d.option("detail_photo_selector", "div.media img[data-src]"),
	}, nil
}

func init() {
	Register("carro", carroFactory)
}
