package publisher

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/woocommerce"
)

// klucze meta_data, po których reconcile odtwarza ledger
const (
	MetaSourceHref = "_source_href"
	MetaCatalog    = "_source_catalog"
)

const defaultFilename = "image.jpg"

// Map buduje body dla /products. media: url zdjęcia -> znane id mediów
// (z ledgera); takie zdjęcia idą jako {id}, reszta jako {src}.
func (p *Publisher) Map(catalogID string, e catalog.EnrichedProduct, media map[string]int64) woocommerce.ProductInput {
	images := make([]woocommerce.Image, 0, len(e.PhotoURLs))
	for _, u := range e.PhotoURLs {
		if id, ok := media[u]; ok && id > 0 {
			images = append(images, woocommerce.Image{ID: id})
			continue
		}
		images = append(images, woocommerce.Image{Src: u})
	}

	var categories []woocommerce.CategoryRef
	if p.cfg.CategoryID > 0 {
		categories = []woocommerce.CategoryRef{{ID: p.cfg.CategoryID}}
	}

	price := ""
	if p.numeric != nil {
		price = p.numeric(e.ConvertedPrice)
	}

	return woocommerce.ProductInput{
		Name:             e.TranslatedName,
		Type:             "simple",
		RegularPrice:     price,
		Description:      fmt.Sprintf("<p>%s - CODE: %s</p>", e.TranslatedName, e.SourceCode),
		ShortDescription: fmt.Sprintf("Qısa təsviri, %s \n orginal url: <a href='%s'> link </a> ", e.TranslatedName, e.SourceHref),
		Categories:       categories,
		Images:           images,
		MetaData: []woocommerce.MetaData{
			{Key: MetaSourceHref, Value: e.SourceHref},
			{Key: MetaCatalog, Value: catalogID},
		},
	}
}

// Filename – ostatni segment ścieżki URL-a zdjęcia.
func Filename(photoURL string) string {
	u, err := url.Parse(photoURL)
	if err != nil {
		return defaultFilename
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return defaultFilename
	}
	if dec, err := url.PathUnescape(name); err == nil {
		name = dec
	}
	return strings.TrimSpace(name)
}
