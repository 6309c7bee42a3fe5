// Package catalog zawiera kanoniczne rekordy przepływające przez pipeline:
// surowy fragment ze sklepu, znormalizowany produkt i produkt wzbogacony.
package catalog

// Fragment to surowa reprezentacja jednej pozycji z listingu, zanim
// przejdzie przez normalizację. Pola są takie, jakie wystawia sklep.
type Fragment struct {
	Name  string
	Price string
	Href  string
	Code  string

	// Photos == nil oznacza "nieznane" – trzeba odwiedzić stronę produktu.
	// Pusty, nie-nil slice oznacza, że listing nie ma zdjęć.
	Photos []string
}

// Listing to wynik pobrania jednej strony katalogu.
type Listing struct {
	Fragments []Fragment
	// TotalPages > 0 gdy strona zawiera wskaźnik paginacji.
	TotalPages int
}

// ScrapedProduct – po normalizacji, nie jest dalej modyfikowany.
type ScrapedProduct struct {
	Name      string
	PriceRaw  string
	PhotoURLs []string
	Href      string
	Code      string
}

// EnrichedProduct to ScrapedProduct z tłumaczeniem nazwy i przeliczoną ceną.
// Kształt JSON jest formatem pliku katalogu (hand-off między scrapem i publikacją).
type EnrichedProduct struct {
	SourceName     string   `json:"product_name_ru"`
	SourcePriceRaw string   `json:"product_price_ru"`
	PhotoURLs      []string `json:"product_photo_url"`
	TranslatedName string   `json:"product_name_az"`
	ConvertedPrice string   `json:"product_price_az"`
	SourceHref     string   `json:"product_href"`
	SourceCode     string   `json:"product_code,omitempty"`
}

// NewEnriched kopiuje pola źródłowe; tłumaczenie domyślnie = oryginał.
func NewEnriched(p ScrapedProduct) EnrichedProduct {
	photos := make([]string, len(p.PhotoURLs))
	copy(photos, p.PhotoURLs)
	return EnrichedProduct{
		SourceName:     p.Name,
		SourcePriceRaw: p.PriceRaw,
		PhotoURLs:      photos,
		TranslatedName: p.Name,
		SourceHref:     p.Href,
		SourceCode:     p.Code,
	}
}

// Scraped odtwarza część źródłową rekordu.
func (e EnrichedProduct) Scraped() ScrapedProduct {
	return ScrapedProduct{
		Name:      e.SourceName,
		PriceRaw:  e.SourcePriceRaw,
		PhotoURLs: e.PhotoURLs,
		Href:      e.SourceHref,
		Code:      e.SourceCode,
	}
}
