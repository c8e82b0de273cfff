package models

import (
	"strconv"
	"strings"
)

// Row is one ordered record from a source. Columns is shared by every row of a source.
type Row struct {
	Number  int64    `json:"number"` // 1-based data row number (header excluded)
	Columns []string `json:"-"`
	Values  []string `json:"values"`
}

// Get returns the value for a column name. Missing columns and short rows yield "".
func (r Row) Get(column string) string {
	for i, c := range r.Columns {
		if c == column {
			if i < len(r.Values) {
				return r.Values[i]
			}
			return ""
		}
	}
	return ""
}

// Index returns the position of a column, or -1.
func (r Row) Index(column string) int {
	for i, c := range r.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// ============================================================================
// Hybrid Row
// ============================================================================

// HybridRow pairs a source row with a fixed set of extension columns computed
// by the engine (resolved foreign keys, for example). Extensions are declared up
// front; lookups of undeclared names fail instead of falling back to the base row.
type HybridRow struct {
	Base       Row
	extensions map[string]string
	declared   []string
}

// NewHybridRow creates a hybrid row with the declared extension column names.
func NewHybridRow(base Row, extensionNames []string) *HybridRow {
	h := &HybridRow{
		Base:       base,
		extensions: make(map[string]string, len(extensionNames)),
		declared:   extensionNames,
	}
	for _, n := range extensionNames {
		h.extensions[n] = ""
	}
	return h
}

// SetExtension sets a declared extension value. Returns false for undeclared names.
func (h *HybridRow) SetExtension(name, value string) bool {
	if _, ok := h.extensions[name]; !ok {
		return false
	}
	h.extensions[name] = value
	return true
}

// Extension returns a declared extension value.
func (h *HybridRow) Extension(name string) (string, bool) {
	v, ok := h.extensions[name]
	return v, ok
}

// String returns the extension value if declared, otherwise the base column value.
func (h *HybridRow) String(name string) string {
	if v, ok := h.extensions[name]; ok {
		return v
	}
	return h.Base.Get(name)
}

// Int parses a column as an integer, accepting thousands separators.
func (h *HybridRow) Int(name string) (int64, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(h.String(name)), ",", "")
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float parses a column as a float.
func (h *HybridRow) Float(name string) (float64, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(h.String(name)), ",", "")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Values returns the base values with extension columns overriding base columns of
// the same name, in base column order.
func (h *HybridRow) Values() []string {
	out := make([]string, len(h.Base.Columns))
	for i, c := range h.Base.Columns {
		if v, ok := h.extensions[c]; ok {
			out[i] = v
		} else if i < len(h.Base.Values) {
			out[i] = h.Base.Values[i]
		}
	}
	return out
}
