package lr

import (
	"encoding/base64"
	"slices"
	"testing"
)

func TestJSONDecoderLine(t *testing.T) {
	raw := `{"type":"line","edges":[1,-2,3],"positiveOffset":12.5,"negativeOffset":5}`

	inputs := map[string]string{
		"raw":        raw,
		"base64 std": base64.StdEncoding.EncodeToString([]byte(raw)),
		"base64 url": base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			loc, err := NewJSONDecoder().Decode(input)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			line, ok := loc.(*ReferencedLine)
			if !ok {
				t.Fatalf("Decode returned %T, want *ReferencedLine", loc)
			}
			if !slices.Equal(line.Edges, []DirectedEdgeRef{1, -2, 3}) {
				t.Errorf("edges = %v", line.Edges)
			}
			if line.PositiveOffsetPercentage != 12.5 || line.NegativeOffsetPercentage != 5 {
				t.Errorf("offsets = %f/%f", line.PositiveOffsetPercentage, line.NegativeOffsetPercentage)
			}
		})
	}
}

func TestJSONDecoderPoint(t *testing.T) {
	loc, err := NewJSONDecoder().Decode(`{"type":"point","edge":-4,"offset":50}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	point, ok := loc.(*ReferencedPoint)
	if !ok {
		t.Fatalf("Decode returned %T, want *ReferencedPoint", loc)
	}
	if point.Edge != -4 || point.OffsetPercentage != 50 {
		t.Errorf("point = %+v", point)
	}
}

func TestJSONDecoderErrors(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not base64 !!",
		`{"type":"line","edges":[]}`,
		`{"type":"line","edges":[1,0]}`,
		`{"type":"line","edges":[1],"positiveOffset":120}`,
		`{"type":"point","edge":0}`,
		`{"type":"polygon"}`,
		`{"type":"line","edges":"x"}`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			if _, err := NewJSONDecoder().Decode(input); err == nil {
				t.Errorf("Decode(%q) expected error", input)
			}
		})
	}
}

func TestEncodeJSONRoundTrip(t *testing.T) {
	line := &ReferencedLine{Edges: []DirectedEdgeRef{7, -8}, PositiveOffsetPercentage: 25}
	s, err := EncodeJSON(line)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	loc, err := NewJSONDecoder().Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	back := loc.(*ReferencedLine)
	if !slices.Equal(back.Edges, line.Edges) || back.PositiveOffsetPercentage != 25 {
		t.Errorf("round trip = %+v, want %+v", back, line)
	}
}
