package models

import "testing"

func tradeRow() Row {
	return Row{
		Number:  1,
		Columns: []string{"Area Code", "Area", "Value"},
		Values:  []string{"41", "China", "1,250"},
	}
}

func TestRow_Get(t *testing.T) {
	r := tradeRow()
	if got := r.Get("Area"); got != "China" {
		t.Errorf("Get(Area) = %q, want China", got)
	}
	if got := r.Get("Missing"); got != "" {
		t.Errorf("Get(Missing) = %q, want empty", got)
	}

	short := Row{Columns: []string{"A", "B"}, Values: []string{"1"}}
	if got := short.Get("B"); got != "" {
		t.Errorf("Get on short row = %q, want empty", got)
	}
	if got := short.Index("B"); got != 1 {
		t.Errorf("Index(B) = %d, want 1", got)
	}
}

func TestHybridRow_Extensions(t *testing.T) {
	h := NewHybridRow(tradeRow(), []string{"Area Code"})

	if got := h.String("Area Code"); got != "" {
		t.Errorf("declared extension starts empty, got %q", got)
	}
	if !h.SetExtension("Area Code", "1000000000") {
		t.Fatal("SetExtension on declared column returned false")
	}
	if h.SetExtension("Area", "x") {
		t.Error("SetExtension on undeclared column returned true")
	}
	if got := h.String("Area"); got != "China" {
		t.Errorf("String(Area) = %q, want base value", got)
	}
	if v, ok := h.Extension("Area Code"); !ok || v != "1000000000" {
		t.Errorf("Extension(Area Code) = %q, %v", v, ok)
	}

	want := []string{"1000000000", "China", "1,250"}
	got := h.Values()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if h.Base.Values[0] != "41" {
		t.Error("base row was mutated")
	}
}

func TestHybridRow_Numbers(t *testing.T) {
	h := NewHybridRow(tradeRow(), nil)

	if n, ok := h.Int("Value"); !ok || n != 1250 {
		t.Errorf("Int(Value) = %d, %v; want 1250, true", n, ok)
	}
	if f, ok := h.Float("Value"); !ok || f != 1250 {
		t.Errorf("Float(Value) = %v, %v; want 1250, true", f, ok)
	}
	if _, ok := h.Int("Area"); ok {
		t.Error("Int(Area) should fail")
	}
}
