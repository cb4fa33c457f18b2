package patch

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type xmlTable struct {
	XMLName xml.Name   `xml:"patchTable"`
	Legacy  string     `xml:"legacy,attr,omitempty"`
	Patches []xmlPatch `xml:"patch"`
}

type xmlPatch struct {
	Ordinal int    `xml:"ordinal,attr"`
	Key     string `xml:"key,attr,omitempty"`
	Applied string `xml:",chardata"`
}

// WriteXML writes the table as a <patchTable> block of booleans.
func (t *Table) WriteXML(w io.Writer) error {
	doc := xmlTable{}
	if t.legacy != 0 {
		doc.Legacy = fmt.Sprintf("%#x", t.legacy)
	}
	for _, e := range t.Entries() {
		doc.Patches = append(doc.Patches, xmlPatch{
			Ordinal: e.Ordinal,
			Key:     e.Key,
			Applied: strconv.FormatBool(e.Applied),
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("patch table xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ReadXML replaces the table with a <patchTable> block. Entries may omit the
// key; they are then checked by ordinal only.
func (t *Table) ReadXML(r io.Reader) error {
	var doc xmlTable
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("patch table xml: %w", err)
	}
	var legacy uint64
	if s := strings.TrimSpace(doc.Legacy); s != "" {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("patch table xml: legacy %q: %w", s, err)
		}
		legacy = v
	}
	entries := make([]Entry, 0, len(doc.Patches))
	for _, p := range doc.Patches {
		applied, err := strconv.ParseBool(strings.TrimSpace(p.Applied))
		if err != nil {
			return fmt.Errorf("patch table xml: ordinal %d: %w", p.Ordinal, err)
		}
		entries = append(entries, Entry{Ordinal: p.Ordinal, Key: p.Key, Applied: applied})
	}
	return t.Restore(entries, legacy)
}
