// internal/woocommerce/woocommerce.go
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	productsPath = "/wp-json/wc/v3/products"
	mediaPath    = "/wp-json/wp/v2/media"
)

type Config struct {
	BaseURL       string // https://shop.example.com
	ConsumerKey   string
	ConsumerSec   string
	MediaUser     string // użytkownik WP dla /wp/v2/media
	MediaPassword string // application password
	UserAgent     string
}

// APIError – odpowiedź Woo/WP spoza 2xx.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsNotFound – 404 z API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

type Client struct {
	log  zerolog.Logger
	cfg  Config
	base *url.URL
	http *http.Client
}

func New(log zerolog.Logger, cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("woocommerce: invalid base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "parts2woo/1.0"
	}
	return &Client{log: log, cfg: cfg, base: base, http: httpClient}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// UploadMedia wysyła surowe bajty obrazka do biblioteki mediów WP.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(mediaPath, nil), bytes.NewReader(data))
	if err != nil {
		return Media{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(filename)))
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(c.cfg.MediaUser, c.cfg.MediaPassword)

	var m Media
	if err := c.send(req, &m); err != nil {
		return Media{}, err
	}
	if m.ID == 0 {
		return Media{}, fmt.Errorf("media upload %s: response without id", filename)
	}
	return m, nil
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var p Product
	err := c.doJSON(ctx, http.MethodPost, c.endpoint(productsPath, nil), in, &p)
	return p, err
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	var p Product
	err := c.doJSON(ctx, http.MethodPut, c.endpoint(productsPath+"/"+strconv.FormatInt(id, 10), nil), in, &p)
	return p, err
}

func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.doJSON(ctx, http.MethodGet, c.endpoint(productsPath+"/"+strconv.FormatInt(id, 10), nil), nil, &p)
	return p, err
}

// DeleteProduct usuwa na stałe (force=true, z pominięciem kosza).
func (c *Client) DeleteProduct(ctx context.Context, id int64) (Product, error) {
	q := url.Values{}
	q.Set("force", "true")
	var p Product
	err := c.doJSON(ctx, http.MethodDelete, c.endpoint(productsPath+"/"+strconv.FormatInt(id, 10), q), nil, &p)
	return p, err
}

// ListProducts – jedna strona /products; fields (np. "id,name,meta_data") opcjonalne.
func (c *Client) ListProducts(ctx context.Context, page, perPage int, fields string) ([]Product, error) {
	q := url.Values{}
	q.Set("orderby", "modified")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	if fields != "" {
		q.Set("_fields", fields)
	}
	var items []Product
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(productsPath, q), nil, &items); err != nil {
		return nil, fmt.Errorf("woo products page %d: %w", page, err)
	}
	return items, nil
}

// EachProductPage stronicuje /products aż do pustej strony.
func (c *Client) EachProductPage(ctx context.Context, perPage int, fields string, fn func(page int, items []Product) error) error {
	if perPage <= 0 {
		perPage = 100
	}
	for page := 1; ; page++ {
		items, err := c.ListProducts(ctx, page, perPage, fields)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := fn(page, items); err != nil {
			return err
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, u, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSec)
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			Method:     req.Method,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// cudzysłowy i znaki sterujące psują nagłówek Content-Disposition
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
