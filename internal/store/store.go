// Package store trzyma katalogi jako pliki JSON – przekazanie między
// scrapowaniem a publikacją.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bartek5186/parts2woo/internal/catalog"
)

var (
	ErrNotFound         = errors.New("catalog not found")
	ErrInvalidCatalogID = errors.New("invalid catalog id")
)

var reCatalogID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

const (
	filePrefix = "products_"
	fileSuffix = ".json"
)

type Store struct {
	Dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(catalogID string) (string, error) {
	if !reCatalogID.MatchString(catalogID) || strings.Contains(catalogID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCatalogID, catalogID)
	}
	return filepath.Join(s.Dir, filePrefix+catalogID+fileSuffix), nil
}

// Save nadpisuje cały snapshot katalogu (tmp + rename).
func (s *Store) Save(catalogID string, products []catalog.EnrichedProduct) error {
	p, err := s.path(catalogID)
	if err != nil {
		return err
	}
	if products == nil {
		products = []catalog.EnrichedProduct{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("encode catalog %s: %w", catalogID, err)
	}

	tmp, err := os.CreateTemp(s.Dir, filePrefix+catalogID+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write catalog %s: %w", catalogID, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *Store) Load(catalogID string) ([]catalog.EnrichedProduct, error) {
	p, err := s.path(catalogID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, catalogID)
		}
		return nil, err
	}
	var out []catalog.EnrichedProduct
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", catalogID, err)
	}
	return out, nil
}

// List zwraca id zapisanych katalogów.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}
