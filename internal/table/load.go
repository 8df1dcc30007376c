package table

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadOptions controls how uploaded files are parsed.
type LoadOptions struct {
	// Delimiter for CSV. If 0, chosen by file extension (.tsv => tab, else comma).
	Delimiter rune
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// XLSX sheet selection. SheetName wins over SheetIndex (1-based).
	SheetName  string
	SheetIndex int
}

// Loader reads files into tables, consulting Cache by content identity.
type Loader struct {
	Options LoadOptions
	Cache   Cache
}

// NewLoader returns a loader backed by cache. A nil cache disables caching.
func NewLoader(opt LoadOptions, cache Cache) *Loader {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Loader{Options: opt, Cache: cache}
}

// LoadFile reads path and returns the parsed table. Repeated loads of identical
// content with identical options return the cached table.
func (l *Loader) LoadFile(path string) (*Table, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return l.Load(filepath.Base(path), data)
}

// Load parses data named name (the extension picks the format).
func (l *Loader) Load(name string, data []byte) (*Table, bool, error) {
	key := l.key(name, data)
	if t, ok := l.Cache.Get(key); ok {
		return t, true, nil
	}
	var (
		t   *Table
		err error
	)
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		t, err = ReadXLSX(bytes.NewReader(data), name, l.Options)
	} else {
		t, err = ReadCSV(bytes.NewReader(data), name, l.Options)
	}
	if err != nil {
		return nil, false, err
	}
	l.Cache.Put(key, t)
	return t, false, nil
}

func (l *Loader) key(name string, data []byte) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%s|%d|%d|%s|%d", strings.ToLower(filepath.Ext(name)), l.Options.Delimiter,
		l.Options.MaxRows, l.Options.SheetName, l.Options.SheetIndex)
	return hex.EncodeToString(h.Sum(nil))
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader, name string, opt LoadOptions) (*Table, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(name, nil, nil), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := headerNames(header)
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	var rows [][]Value
	for n := 1; len(rows) < maxRows; n++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}
		rows = append(rows, rawRow(rec, len(cols)))
	}
	return New(name, cols, rows), nil
}

// ReadXLSX parses the selected worksheet; the first row is the header.
func ReadXLSX(r io.Reader, name string, opt LoadOptions) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(name, nil, nil), nil
	}
	sheet := ""
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s, opt.SheetName) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
				opt.SheetName, name, strings.Join(sheets, ", "))
		}
	} else {
		idx := opt.SheetIndex
		if idx <= 0 || idx > len(sheets) {
			idx = 1
		}
		sheet = sheets[idx-1]
	}
	recs, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(recs) == 0 {
		return New(name, nil, nil), nil
	}
	cols := headerNames(recs[0])
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	var rows [][]Value
	for _, rec := range recs[1:] {
		if len(rows) >= maxRows {
			break
		}
		rows = append(rows, rawRow(rec, len(cols)))
	}
	return New(name, cols, rows), nil
}

func rawRow(rec []string, n int) []Value {
	row := make([]Value, n)
	for j := 0; j < n && j < len(rec); j++ {
		row[j] = Str(rec[j])
	}
	return row
}

// headerNames trims names, strips a UTF-8 BOM and de-duplicates repeats as name.1, name.2.
// Generated names skip any name that appears literally in the header.
func headerNames(header []string) []string {
	clean := make([]string, len(header))
	literal := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("unnamed_%d", i)
		}
		clean[i] = h
		literal[h] = true
	}
	out := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	next := map[string]int{}
	for i, h := range clean {
		name := h
		for taken[name] {
			next[h]++
			name = fmt.Sprintf("%s.%d", h, next[h])
			if literal[name] {
				name = h
			}
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}
