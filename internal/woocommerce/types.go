// internal/woocommerce/types.go
package woocommerce

type Image struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src,omitempty"`
}

type CategoryRef struct {
	ID int64 `json:"id"`
}

type MetaData struct {
	ID    int64  `json:"id,omitempty"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ProductInput – body dla POST/PUT /products.
type ProductInput struct {
	Name             string        `json:"name"`
	Type             string        `json:"type"` // "simple"
	RegularPrice     string        `json:"regular_price"`
	Description      string        `json:"description"`
	ShortDescription string        `json:"short_description"`
	Categories       []CategoryRef `json:"categories,omitempty"`
	Images           []Image       `json:"images"`
	MetaData         []MetaData    `json:"meta_data,omitempty"`
}

// Product – to co zwraca /wp-json/wc/v3/products.
type Product struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	SKU          string     `json:"sku"`
	Status       string     `json:"status"`        // "publish","draft","trash"
	RegularPrice string     `json:"regular_price"` // string w Woo
	SalePrice    string     `json:"sale_price"`
	Type         string     `json:"type"` // "simple","variable", etc.
	DateModified string     `json:"date_modified_gmt"`
	Images       []Image    `json:"images"`
	MetaData     []MetaData `json:"meta_data"`
}

// Meta zwraca wartość meta jako string ("" gdy brak).
func (p Product) Meta(key string) string {
	for _, m := range p.MetaData {
		if m.Key != key {
			continue
		}
		if s, ok := m.Value.(string); ok {
			return s
		}
	}
	return ""
}

// Media – odpowiedź /wp-json/wp/v2/media.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}
