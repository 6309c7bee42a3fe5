package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// "Фара" w windows-1251
var cp1251Fara = []byte{0xD4, 0xE0, 0xF0, 0xE0}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHTMLDecodesHeaderCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "ua-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=cp1251")
		_, _ = w.Write(append([]byte("<p>"), append(cp1251Fara, []byte("</p>")...)...))
	}))
	defer srv.Close()

	f := New(nil, "ua-test")
	rc, err := f.HTML(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, rc); got != "<p>Фара</p>" {
		t.Fatalf("body = %q", got)
	}
}

func TestHTMLDecodesMetaCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		body := []byte(`<html><head><meta charset="windows-1251"></head><body>`)
		body = append(body, cp1251Fara...)
		body = append(body, []byte("</body></html>")...)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	rc, err := New(nil, "").HTML(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	want := `<html><head><meta charset="windows-1251"></head><body>Фара</body></html>`
	if got := readAll(t, rc); got != want {
		t.Fatalf("body = %q", got)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte{1, 2, 3})
		}
	}))
	defer srv.Close()
	f := New(nil, "")

	_, err := f.Bytes(context.Background(), srv.URL+"/missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Transient() {
		t.Fatalf("missing: %v", err)
	}
	_, err = f.HTML(context.Background(), srv.URL+"/busy")
	if !errors.As(err, &se) || !se.Transient() {
		t.Fatalf("busy: %v", err)
	}

	b, err := f.Bytes(context.Background(), srv.URL+"/img.jpg")
	if err != nil || len(b) != 3 {
		t.Fatalf("Bytes = %v, %v", b, err)
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := New(NewClient(Timeouts{Total: 50 * time.Millisecond}), "")
	if _, err := f.Bytes(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestNormalizeCharset(t *testing.T) {
	cases := map[string]string{
		"CP1251":       "windows-1251",
		" win-1251 ":   "windows-1251",
		"KOI8R":        "koi8-r",
		"utf-8":        "utf-8",
		"windows-1251": "windows-1251",
	}
	for in, want := range cases {
		if got := NormalizeCharset(in); got != want {
			t.Errorf("NormalizeCharset(%q) = %q, want %q", in, got, want)
		}
	}
}
