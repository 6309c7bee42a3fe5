package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger pamięta, który produkt źródłowy ma już swój odpowiednik w sklepie.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(gdb *gorm.DB) *Ledger {
	return &Ledger{db: gdb}
}

// Lookup – link po (katalog, href); false gdy brak.
func (l *Ledger) Lookup(ctx context.Context, catalogID, href string) (ProductLink, bool, error) {
	var link ProductLink
	err := l.db.WithContext(ctx).
		Where("catalog_id = ? AND source_href = ?", catalogID, href).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ProductLink{}, false, nil
	}
	if err != nil {
		return ProductLink{}, false, fmt.Errorf("ledger lookup %s: %w", href, err)
	}
	return link, true, nil
}

// Record zapisuje albo aktualizuje link (upsert po catalog_id + source_href).
func (l *Ledger) Record(ctx context.Context, link ProductLink) error {
	link.ID = 0
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "catalog_id"}, {Name: "source_href"}},
		DoUpdates: clause.Assignments(map[string]any{
			"woo_id":     link.WooID,
			"media_json": link.MediaJSON,
			"name":       link.Name,
			"price":      link.Price,
			"updated_at": time.Now(),
		}),
	}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", link.SourceHref, err)
	}
	return nil
}

// Forget usuwa link (np. produkt skasowany w sklepie).
func (l *Ledger) Forget(ctx context.Context, catalogID, href string) error {
	return l.db.WithContext(ctx).
		Where("catalog_id = ? AND source_href = ?", catalogID, href).
		Delete(&ProductLink{}).Error
}

// Links zwraca wszystkie linki katalogu.
func (l *Ledger) Links(ctx context.Context, catalogID string) ([]ProductLink, error) {
	var out []ProductLink
	err := l.db.WithContext(ctx).
		Where("catalog_id = ?", catalogID).
		Order("id").
		Find(&out).Error
	return out, err
}

// SaveRun zapisuje raport etapu.
func (l *Ledger) SaveRun(ctx context.Context, r RunReport) error {
	return l.db.WithContext(ctx).Create(&r).Error
}

// Runs – ostatnie raporty katalogu, najnowsze pierwsze.
func (l *Ledger) Runs(ctx context.Context, catalogID string, limit int) ([]RunReport, error) {
	var out []RunReport
	q := l.db.WithContext(ctx).Where("catalog_id = ?", catalogID).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
