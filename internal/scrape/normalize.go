package scrape

import (
	"regexp"
	"strings"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/source"
)

// spacje w cenach: zwykłe, NBSP, wąskie NBSP, thin space
var reSpaces = regexp.MustCompile(`[\s\x{00A0}\x{202F}\x{2009}]+`)

// CollapseSpaces zwija ciągi białych znaków do jednej spacji i przycina brzegi.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// Normalize zamienia fragment na ScrapedProduct. Link i zdjęcia są
// rozwiązywane względem root. false = fragment bez nazwy albo bez linku.
func Normalize(root string, f catalog.Fragment) (catalog.ScrapedProduct, bool) {
	name := strings.TrimSpace(f.Name)
	href := source.ResolveURL(root, f.Href)
	if name == "" || href == "" {
		return catalog.ScrapedProduct{}, false
	}

	photos := make([]string, 0, len(f.Photos))
	seen := make(map[string]struct{}, len(f.Photos))
	for _, p := range f.Photos {
		u := source.ResolveURL(root, p)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		photos = append(photos, u)
	}

	return catalog.ScrapedProduct{
		Name:      name,
		PriceRaw:  CollapseSpaces(f.Price),
		PhotoURLs: photos,
		Href:      href,
		Code:      strings.TrimSpace(f.Code),
	}, true
}

// NormalizeAll normalizuje stronę fragmentów; zwraca też liczbę pominiętych
// (brak nazwy/linku) i zdublowanych linków.
func NormalizeAll(root string, frags []catalog.Fragment) (out []catalog.ScrapedProduct, skipped, dups int) {
	out = make([]catalog.ScrapedProduct, 0, len(frags))
	seen := make(map[string]struct{}, len(frags))
	for _, f := range frags {
		p, ok := Normalize(root, f)
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[p.Href]; dup {
			dups++
			continue
		}
		seen[p.Href] = struct{}{}
		out = append(out, p)
	}
	return out, skipped, dups
}
