// Package fetch trzyma wspólnego klienta HTTP na jeden przebieg
// i pobieranie stron HTML zdekodowanych do UTF-8.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Timeouts – connect / nagłówki odpowiedzi / całość.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Total   time.Duration
}

// StatusError – odpowiedź spoza 2xx.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode)
}

// Transient: 5xx i 429 warto ponowić, 4xx nie.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewClient buduje jednego klienta współdzielonego przez cały przebieg.
func NewClient(t Timeouts) *http.Client {
	if t.Total <= 0 {
		t.Total = 60 * time.Second
	}
	if t.Connect <= 0 {
		t.Connect = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	tr.TLSHandshakeTimeout = t.Connect
	if t.Read > 0 {
		tr.ResponseHeaderTimeout = t.Read
	}
	tr.MaxIdleConnsPerHost = 8

	return &http.Client{Transport: tr, Timeout: t.Total}
}

// Fetcher pobiera strony z ustalonym User-Agentem.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func New(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = NewClient(Timeouts{})
	}
	return &Fetcher{Client: client, UserAgent: userAgent}
}

// HTML zwraca ciało strony zdekodowane do UTF-8 wg Content-Type / meta charset.
func (f *Fetcher) HTML(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, url, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	r, err := decodeBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("charset %s: %w", url, err)
	}
	return readCloser{Reader: r, Closer: resp.Body}, nil
}

// Bytes pobiera surowe bajty (np. zdjęcie).
func (f *Fetcher) Bytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url, "*/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return b, nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// decodeBody: jawny charset z nagłówka idzie przez NormalizeCharset,
// bez niego charset sam węszy po <meta>.
func decodeBody(body io.Reader, contentType string) (io.Reader, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			return charset.NewReaderLabel(NormalizeCharset(cs), body)
		}
	}
	return charset.NewReader(body, contentType)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// NormalizeCharset mapuje nietypowe etykiety na nazwy rozpoznawane przez charset.Lookup.
func NormalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "cp1251", "windows1251", "win-1251", "win1251":
		return "windows-1251"
	case "koi8r", "koi8":
		return "koi8-r"
	default:
		return c
	}
}
