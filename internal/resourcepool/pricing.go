// Package resourcepool loads the shard's resource pricing tables.
//
// Tables come from pricing.xml in the data directory. The file is optional:
// when it is missing or empty the built-in defaults are used and written out
// so operators have something to edit.
package resourcepool

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultTable is the table used by pools that name none, and the table that
// top-level <resource> elements belong to.
const DefaultTable = "default"

type Resource struct {
	Name  string
	Price float64
	Max   int
}

// Table is one named price list.
type Table struct {
	Name      string
	resources map[string]Resource
}

func NewTable(name string, rs ...Resource) *Table {
	t := &Table{Name: name, resources: map[string]Resource{}}
	for _, r := range rs {
		t.resources[strings.ToLower(r.Name)] = r
	}
	return t
}

// Lookup finds a resource by case-insensitive name.
func (t *Table) Lookup(name string) (Resource, bool) {
	r, ok := t.resources[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// Resources returns the table contents sorted by name.
func (t *Table) Resources() []Resource {
	out := make([]Resource, 0, len(t.resources))
	for _, r := range t.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Book holds every pricing table. It is filled by a pre-load hook and read by
// pools after load, so it is safe for concurrent use.
type Book struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewBook() *Book {
	b := &Book{}
	b.Replace(Defaults())
	return b
}

func (b *Book) Table(name string) (*Table, bool) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTable
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[strings.ToLower(name)]
	return t, ok
}

// Names lists the table names, sorted.
func (b *Book) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.tables))
	for n := range b.tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Replace swaps in a new set of tables.
func (b *Book) Replace(tables []*Table) {
	m := make(map[string]*Table, len(tables))
	for _, t := range tables {
		m[strings.ToLower(t.Name)] = t
	}
	b.mu.Lock()
	b.tables = m
	b.mu.Unlock()
}

var defaultResources = []Resource{
	{Name: "ingots", Price: 9, Max: 60000},
	{Name: "logs", Price: 3, Max: 60000},
	{Name: "leather", Price: 6, Max: 30000},
	{Name: "cloth", Price: 2.5, Max: 30000},
	{Name: "feathers", Price: 0.5, Max: 20000},
	{Name: "reagents", Price: 4, Max: 40000},
}

// Defaults returns the built-in tables.
func Defaults() []*Table {
	return []*Table{NewTable(DefaultTable, defaultResources...)}
}

func defaultFor(name string) (Resource, bool) {
	for _, r := range defaultResources {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Resource{}, false
}

type xmlResource struct {
	Name  string `xml:"name,attr"`
	Price string `xml:"price,attr"`
	Max   string `xml:"max,attr"`
}

type xmlTable struct {
	Name      string        `xml:"name,attr"`
	Resources []xmlResource `xml:"resource"`
}

type xmlPricing struct {
	XMLName   xml.Name      `xml:"pricing"`
	Resources []xmlResource `xml:"resource"`
	Tables    []xmlTable    `xml:"table"`
}

// ErrEmpty is returned by Parse for a document with no resources at all.
var ErrEmpty = errors.New("resourcepool: pricing has no resources")

// Parse reads a <pricing> document. An element whose price or max does not
// parse keeps the built-in value for that resource (or zero) and produces a
// warning; an element without a name is skipped with a warning.
func Parse(r io.Reader) ([]*Table, []string, error) {
	var doc xmlPricing
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrEmpty
		}
		return nil, nil, fmt.Errorf("resourcepool: parse pricing: %w", err)
	}

	var warnings []string
	sections := append([]xmlTable{{Name: DefaultTable, Resources: doc.Resources}}, doc.Tables...)
	byName := map[string]*Table{}
	var order []string
	total := 0
	for _, sec := range sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			warnings = append(warnings, "table without a name skipped")
			continue
		}
		key := strings.ToLower(name)
		t, ok := byName[key]
		if !ok {
			t = NewTable(name)
			byName[key] = t
			order = append(order, key)
		}
		for _, xr := range sec.Resources {
			res, warn := parseResource(xr)
			if warn != "" {
				warnings = append(warnings, fmt.Sprintf("table %s: %s", name, warn))
			}
			if res.Name == "" {
				continue
			}
			t.resources[strings.ToLower(res.Name)] = res
			total++
		}
	}
	if total == 0 {
		return nil, warnings, ErrEmpty
	}
	out := make([]*Table, 0, len(order))
	for _, k := range order {
		if len(byName[k].resources) > 0 {
			out = append(out, byName[k])
		}
	}
	return out, warnings, nil
}

func parseResource(xr xmlResource) (Resource, string) {
	name := strings.TrimSpace(xr.Name)
	if name == "" {
		return Resource{}, "resource without a name skipped"
	}
	def, _ := defaultFor(name)
	res := Resource{Name: name, Price: def.Price, Max: def.Max}
	var bad []string
	if s := strings.TrimSpace(xr.Price); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
			res.Price = v
		} else {
			bad = append(bad, fmt.Sprintf("price %q", xr.Price))
		}
	}
	if s := strings.TrimSpace(xr.Max); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			res.Max = v
		} else {
			bad = append(bad, fmt.Sprintf("max %q", xr.Max))
		}
	}
	if len(bad) > 0 {
		return res, fmt.Sprintf("resource %s: bad %s, using default", name, strings.Join(bad, " and "))
	}
	return res, ""
}

// Write encodes tables as a <pricing> document. The default table is written
// as top-level resources.
func Write(w io.Writer, tables []*Table) error {
	var doc xmlPricing
	for _, t := range tables {
		var rs []xmlResource
		for _, r := range t.Resources() {
			rs = append(rs, xmlResource{
				Name:  r.Name,
				Price: strconv.FormatFloat(r.Price, 'f', -1, 64),
				Max:   strconv.Itoa(r.Max),
			})
		}
		if strings.EqualFold(t.Name, DefaultTable) {
			doc.Resources = append(doc.Resources, rs...)
		} else {
			doc.Tables = append(doc.Tables, xmlTable{Name: t.Name, Resources: rs})
		}
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// LoadFile reads path. A missing or empty file yields the defaults, which are
// then written to path; a file that does not parse is an error.
func LoadFile(path string, logger *log.Logger) ([]*Table, error) {
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logf(logger, "WARNING: %s not found, using default pricing", path)
		return writeDefaults(path, logger)
	case err != nil:
		return nil, err
	}
	defer f.Close()

	tables, warnings, err := Parse(f)
	for _, w := range warnings {
		logf(logger, "WARNING: %s: %s", path, w)
	}
	if errors.Is(err, ErrEmpty) {
		logf(logger, "WARNING: %s is empty, using default pricing", path)
		return writeDefaults(path, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tables, nil
}

func writeDefaults(path string, logger *log.Logger) ([]*Table, error) {
	tables := Defaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logf(logger, "WARNING: write default pricing: %v", err)
		return tables, nil
	}
	f, err := os.Create(path)
	if err != nil {
		logf(logger, "WARNING: write default pricing: %v", err)
		return tables, nil
	}
	if err := Write(f, tables); err != nil {
		f.Close()
		logf(logger, "WARNING: write default pricing: %v", err)
		return tables, nil
	}
	if err := f.Close(); err != nil {
		logf(logger, "WARNING: write default pricing: %v", err)
	}
	return tables, nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
