package reverse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

func TestSwapDirections(t *testing.T) {
	tests := []struct {
		name  string
		in    attrs.Set
		pairs []Pair
		want  attrs.Set
	}{
		{
			name: "key suffix",
			in:   attrs.New("blocked:fwd", "yes"),
			want: attrs.New("blocked:bwd", "yes"),
		},
		{
			name: "value token",
			in:   attrs.New("blocked", "fwd"),
			want: attrs.New("blocked", "bwd"),
		},
		{
			name: "osm forward/backward both present",
			in:   attrs.New("maxspeed:forward", "50", "maxspeed:backward", "30", "name", "Main"),
			want: attrs.New("maxspeed:backward", "50", "maxspeed:forward", "30", "name", "Main"),
		},
		{
			name: "suffix must be a whole component",
			in:   attrs.New("prefwd", "x", "lanes:forwardish", "2"),
			want: attrs.New("prefwd", "x", "lanes:forwardish", "2"),
		},
		{
			name:  "custom pairs",
			in:    attrs.New("traffic:east", "jam", "side", "west"),
			pairs: []Pair{{"east", "west"}},
			want:  attrs.New("traffic:west", "jam", "side", "east"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SwapDirections(tt.pairs...)(tt.in)
			if !got.ContainsSame(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSwapDirectionsDoesNotModifyInput(t *testing.T) {
	in := attrs.New("blocked:fwd", "yes")
	SwapDirections()(in)
	if !in.Has("blocked:fwd") {
		t.Errorf("input modified: %v", in)
	}
}

const luaReverse = `
function reverse(tags)
	local out = {}
	for k, v in pairs(tags) do
		out[osmlr.swap_suffix(k, "left", "right")] = v
	end
	out["reversed"] = true
	return out
end
`

func TestScriptReverse(t *testing.T) {
	s, err := NewScript(luaReverse)
	if err != nil {
		t.Fatalf("NewScript failed: %v", err)
	}
	defer s.Close()

	got, err := s.Reverse(attrs.New("parking:left", "no", "name", "X"))
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	want := attrs.New("parking:right", "no", "name", "X", "reversed", "true")
	if !got.ContainsSame(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// same result through the Transform adapter
	if out := s.Transform()(attrs.New("parking:left", "no", "name", "X")); !out.ContainsSame(want) {
		t.Errorf("Transform() = %v, want %v", out, want)
	}
}

func TestScriptErrors(t *testing.T) {
	if _, err := NewScript(`x = 1`); err == nil {
		t.Error("expected error when reverse is missing")
	}
	if _, err := NewScript(`function reverse(`); err == nil {
		t.Error("expected syntax error")
	}

	s, err := NewScript(`function reverse(tags) return "nope" end`)
	if err != nil {
		t.Fatalf("NewScript failed: %v", err)
	}
	defer s.Close()
	if _, err := s.Reverse(attrs.New("a", "1")); err == nil {
		t.Error("expected error for non-table return")
	}
	// failures fall back to the input
	in := attrs.New("a", "1")
	if out := s.Transform()(in); !out.ContainsSame(in) {
		t.Errorf("Transform() = %v, want input unchanged", out)
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reverse.lua")
	code := `function reverse(tags)
		if osmlr.has_suffix("oneway:fwd", "fwd") then tags["checked"] = "1" end
		return tags
	end`
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	defer s.Close()

	got, err := s.Reverse(attrs.New("a", "1"))
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if !got.ContainsSame(attrs.New("a", "1", "checked", "1")) {
		t.Errorf("got %v", got)
	}

	if _, err := LoadScript(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("expected error for missing file")
	}
}
