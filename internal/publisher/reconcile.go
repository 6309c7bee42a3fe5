package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bartek5186/parts2woo/internal/db"
	"github.com/bartek5186/parts2woo/internal/woocommerce"
)

var ErrNoLedger = errors.New("reconcile requires the ledger (db.enabled)")

const reconcileFields = "id,name,regular_price,meta_data"

// ReconcileStats – wynik odbudowy ledgera ze sklepu.
type ReconcileStats struct {
	Pages    int
	Products int
	Linked   int
	Unlinked int
}

// Reconcile przechodzi wszystkie produkty sklepu i odtwarza linki z meta
// _source_href/_source_catalog. catalogID != "" ogranicza do jednego katalogu.
// Znane już mapowania mediów zostają.
func (p *Publisher) Reconcile(ctx context.Context, catalogID string) (ReconcileStats, error) {
	var st ReconcileStats
	if p.ledger == nil {
		return st, ErrNoLedger
	}

	err := p.client.EachProductPage(ctx, 100, reconcileFields, func(page int, items []woocommerce.Product) error {
		st.Pages = page
		for _, prod := range items {
			st.Products++
			href := strings.TrimSpace(prod.Meta(MetaSourceHref))
			cat := strings.TrimSpace(prod.Meta(MetaCatalog))
			if href == "" || cat == "" {
				st.Unlinked++
				continue
			}
			if catalogID != "" && cat != catalogID {
				continue
			}

			rec := db.ProductLink{CatalogID: cat, SourceHref: href, WooID: prod.ID, Name: prod.Name}
			prev, ok, err := p.ledger.Lookup(ctx, cat, href)
			if err != nil {
				return err
			}
			if ok {
				rec.MediaJSON = prev.MediaJSON
				rec.Price = prev.Price
			}
			if err := p.ledger.Record(ctx, rec); err != nil {
				return err
			}
			st.Linked++
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("reconcile: %w", err)
	}

	p.log.Info().
		Str("catalog", catalogID).
		Int("pages", st.Pages).
		Int("products", st.Products).
		Int("linked", st.Linked).
		Int("unlinked", st.Unlinked).
		Msg("ledger reconciled")
	return st, nil
}
