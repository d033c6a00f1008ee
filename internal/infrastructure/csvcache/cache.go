package csvcache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"PatentReporter/internal/domain"
	"PatentReporter/internal/ports"
)

const (
	colApplication  = "ApplicationNumber"
	colRegistration = "Registration Number"
	colInvention    = "Invention Name"
	colAbstract     = "Abstract"
)

var (
	header = []string{colApplication, colRegistration, colInvention, colAbstract}
	bom    = []byte{0xEF, 0xBB, 0xBF}
)

// Cache stores raw records as a UTF-8 CSV with a byte-order mark so spreadsheet tools open it correctly.
type Cache struct {
	path string
}

var _ ports.PatentCache = (*Cache)(nil)

// New returns a cache backed by the file at path.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Location is the file path, used in logs and as the data source label.
func (c *Cache) Location() string {
	return c.path
}

// Load reads every row. A missing file is not an error. Columns are matched by header name
// so the column order of hand-edited files does not matter.
func (c *Cache) Load(_ context.Context) ([]domain.Patent, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if prefix, err := br.Peek(len(bom)); err == nil && bytes.Equal(prefix, bom) {
		_, _ = br.Discard(len(bom))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := map[string]int{}
	for i, name := range head {
		index[strings.TrimSpace(name)] = i
	}
	if _, ok := index[colApplication]; !ok {
		return nil, fmt.Errorf("cache %s: missing %q column", c.path, colApplication)
	}

	var patents []domain.Patent
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		patents = append(patents, domain.Patent{
			ApplicationNumber:  cell(row, index, colApplication),
			RegistrationNumber: cell(row, index, colRegistration),
			InventionName:      cell(row, index, colInvention),
			Abstract:           cell(row, index, colAbstract),
		})
	}
	return patents, nil
}

// Save replaces the cache file atomically.
func (c *Cache) Save(_ context.Context, patents []domain.Patent) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".patent-cache-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRows(tmp, patents); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

func writeRows(w io.Writer, patents []domain.Patent) error {
	if _, err := w.Write(bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range patents {
		if err := cw.Write([]string{p.ApplicationNumber, p.RegistrationNumber, p.InventionName, p.Abstract}); err != nil {
			return fmt.Errorf("write row %s: %w", p.ApplicationNumber, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

func cell(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return domain.NotAvailable
	}
	v := strings.TrimSpace(row[i])
	if v == "" {
		return domain.NotAvailable
	}
	return v
}
