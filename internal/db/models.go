// internal/db/models.go
package db

import (
	"encoding/json"
	"time"
)

// product_links: źródło (katalog + href) -> produkt w WooCommerce
type ProductLink struct {
	ID         uint   `gorm:"primaryKey"`
	CatalogID  string `gorm:"size:128;uniqueIndex:uniq_link_source"`
	SourceHref string `gorm:"size:512;uniqueIndex:uniq_link_source"`
	WooID      int64  `gorm:"index"`
	MediaJSON  string `gorm:"type:text"` // {"<url zdjęcia>": media_id}
	Name       string
	Price      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Media zwraca mapę url zdjęcia -> id mediów WP.
func (l ProductLink) Media() map[string]int64 {
	out := map[string]int64{}
	if l.MediaJSON == "" {
		return out
	}
	_ = json.Unmarshal([]byte(l.MediaJSON), &out)
	return out
}

func (l *ProductLink) SetMedia(m map[string]int64) {
	if len(m) == 0 {
		l.MediaJSON = ""
		return
	}
	b, _ := json.Marshal(m)
	l.MediaJSON = string(b)
}

// run_reports: podsumowanie etapu dla jednego katalogu
type RunReport struct {
	RunID      string `gorm:"primaryKey;size:36"`
	CatalogID  string `gorm:"size:128;index"`
	Stage      string `gorm:"size:16;index"` // scrape | publish
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Ok         int
	Degraded   int
	Failed     int
	Skipped    int
	Details    string `gorm:"type:text"` // JSON statystyk etapu
}
