package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bartek5186/parts2woo/internal/fetch"
)

func loadDocument(ctx context.Context, f *fetch.Fetcher, pageURL string) (*goquery.Document, error) {
	body, err := f.HTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// ResolveURL składa ref względem base; błędny ref zwraca pusty string.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

// maxPageNumber – największy numer strony z linków paginacji (0 gdy brak).
func maxPageNumber(sel *goquery.Selection, re *regexp.Regexp) int {
	top := 0
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := re.FindStringSubmatch(href)
		if len(m) < 2 {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > top {
			top = n
		}
	})
	return top
}

func collectAttr(sel *goquery.Selection, attr, base string) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr(attr)
		if !ok {
			return
		}
		if u := ResolveURL(base, v); u != "" {
			out = append(out, u)
		}
	})
	return out
}
