package param

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestKeyFormat(t *testing.T) {
	c := Combination{{"M", 5}, {"N", 15}}
	if got := Key(c); got != "M5_N15" {
		t.Fatalf("expected M5_N15, got %q", got)
	}

	back, err := ParseKey("M5_N15", []string{"M", "N"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(back) != 2 || back[0] != (Param{"M", 5}) || back[1] != (Param{"N", 15}) {
		t.Errorf("round trip produced %v", back)
	}
}

func TestParseKeyUnderscoreNames(t *testing.T) {
	c := Combination{
		{"M", 10},
		{"N", 15},
		{"use_u_diff_cost", true},
		{"use_u_diff_constr", false},
	}
	key := Key(c)
	if key != "M10_N15_use_u_diff_costTrue_use_u_diff_constrFalse" {
		t.Fatalf("unexpected key %q", key)
	}
	back, err := ParseKey(key, c.Names())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for i := range c {
		if back[i] != c[i] {
			t.Errorf("param %d: got %v want %v", i, back[i], c[i])
		}
	}
}

func TestParseKeyBoolSpellings(t *testing.T) {
	names := []string{"M", "N", "use_u_diff_cost", "use_u_diff_constr"}
	for _, key := range []string{
		"M2_N15_use_u_diff_costTrue_use_u_diff_constrFalse",
		"M2_N15_use_u_diff_costtrue_use_u_diff_constrfalse",
	} {
		back, err := ParseKey(key, names)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		cost, err := back.Bool("use_u_diff_cost", false)
		if err != nil || !cost {
			t.Errorf("%s: cost flag %v (%v)", key, cost, err)
		}
		constr, err := back.Bool("use_u_diff_constr", true)
		if err != nil || constr {
			t.Errorf("%s: constraint flag %v (%v)", key, constr, err)
		}
		if got := Key(back); got != "M2_N15_use_u_diff_costTrue_use_u_diff_constrFalse" {
			t.Errorf("%s: re-keyed as %s", key, got)
		}
	}
}

func TestParseKeyPrefixNames(t *testing.T) {
	back, err := ParseKey("M5_Ns10_N15", []string{"M", "Ns", "N"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := back.Int("Ns", 0); v != 10 {
		t.Errorf("expected Ns=10, got %v", back)
	}
	if v, _ := back.Int("N", 0); v != 15 {
		t.Errorf("expected N=15, got %v", back)
	}
}

func TestParseKeyErrors(t *testing.T) {
	tests := []struct {
		key   string
		names []string
	}{
		{"M5_N15", []string{"N", "M"}},
		{"M5", []string{"M", "N"}},
		{"M5_N15_x", []string{"M", "N"}},
		{"Mfive_N15", []string{"M", "N"}},
	}
	for _, tt := range tests {
		if _, err := ParseKey(tt.key, tt.names); !errors.Is(err, ErrBadKey) {
			t.Errorf("ParseKey(%q, %v): expected ErrBadKey, got %v", tt.key, tt.names, err)
		}
	}
}

func TestFloatValues(t *testing.T) {
	key := Key(Combination{{"spring", 1.5}})
	if key != "spring1.5" {
		t.Fatalf("unexpected key %q", key)
	}
	back, err := ParseKey(key, []string{"spring"})
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := back.Float("spring", 0); f != 1.5 {
		t.Errorf("expected 1.5, got %v", back)
	}
}

func TestCombinationsOrder(t *testing.T) {
	axes := Axes{
		{Name: "M", Values: []any{2, 3}},
		{Name: "N", Values: []any{10, 15, 20}},
	}
	combos := axes.Combinations()
	if len(combos) != 6 || axes.Size() != 6 {
		t.Fatalf("expected 6 combinations, got %d", len(combos))
	}
	want := []string{"M2_N10", "M2_N15", "M2_N20", "M3_N10", "M3_N15", "M3_N20"}
	for i, c := range combos {
		if Key(c) != want[i] {
			t.Errorf("combination %d: got %s want %s", i, Key(c), want[i])
		}
	}
}

func TestAxesYAMLKeepsOrder(t *testing.T) {
	src := []byte("N: [15]\nM: [2, 5]\nuse_u_diff_cost: [false, true]\nspring: [1.5]\n")
	var axes Axes
	if err := yaml.Unmarshal(src, &axes); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	names := axes.Names()
	if len(names) != 4 || names[0] != "N" || names[1] != "M" || names[2] != "use_u_diff_cost" {
		t.Fatalf("order not preserved: %v", names)
	}
	if axes[1].Values[1] != 5 || axes[2].Values[1] != true || axes[3].Values[0] != 1.5 {
		t.Errorf("unexpected values %v", axes)
	}
	if err := axes.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	out, err := yaml.Marshal(axes)
	if err != nil {
		t.Fatal(err)
	}
	var again Axes
	if err := yaml.Unmarshal(out, &again); err != nil {
		t.Fatal(err)
	}
	if Key(again.Combinations()[0]) != Key(axes.Combinations()[0]) {
		t.Errorf("yaml round trip changed axes: %s", out)
	}
}

func TestAxesJSONKeepsOrder(t *testing.T) {
	axes := Axes{
		{Name: "M", Values: []any{2, 5}},
		{Name: "Ns", Values: []any{1, 5}},
		{Name: "N", Values: []any{15}},
	}
	data, err := json.Marshal(axes)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"M":[2,5],"Ns":[1,5],"N":[15]}` {
		t.Fatalf("unexpected JSON %s", data)
	}
	var back Axes
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if len(back) != 3 || back[1].Name != "Ns" || back[1].Values[1] != 5 {
		t.Errorf("json round trip produced %v", back)
	}
}

func TestAxesValidate(t *testing.T) {
	bad := []Axes{
		{{Name: "", Values: []any{1}}},
		{{Name: "M", Values: nil}},
		{{Name: "M", Values: []any{1}}, {Name: "M", Values: []any{2}}},
		{{Name: "M", Values: []any{"x"}}},
	}
	for i, axes := range bad {
		if err := axes.Validate(); !errors.Is(err, ErrBadValue) {
			t.Errorf("case %d: expected ErrBadValue, got %v", i, err)
		}
	}
}
