// internal/source/types.go
package source

import (
	"context"

	"github.com/bartek5186/parts2woo/internal/catalog"
	"github.com/bartek5186/parts2woo/internal/fetch"
	"github.com/rs/zerolog"
)

// Adapter opakowuje parsowanie jednego sklepu.
type Adapter interface {
	Name() string
	// ListPage pobiera stronę page (od 1) katalogu root.
	ListPage(ctx context.Context, root string, page int) (catalog.Listing, error)
	// Photos zwraca absolutne URL-e zdjęć ze strony produktu (href absolutny).
	Photos(ctx context.Context, href string) ([]string, error)
}

type Deps struct {
	Log     zerolog.Logger
	Fetcher *fetch.Fetcher
	Options map[string]string
}

func (d Deps) option(key, def string) string {
	if v, ok := d.Options[key]; ok && v != "" {
		return v
	}
	return def
}

type Factory func(d Deps) (Adapter, error)
