package lr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Decoder turns an encoded location reference into a Location
type Decoder interface {
	Decode(encoded string) (Location, error)
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(encoded string) (Location, error)

// Decode calls f(encoded)
func (f DecoderFunc) Decode(encoded string) (Location, error) {
	return f(encoded)
}

// locationDocument is the JSON form read by JSONDecoder
type locationDocument struct {
	Type           string            `json:"type"`
	Edges          []DirectedEdgeRef `json:"edges,omitempty"`
	PositiveOffset float64           `json:"positiveOffset,omitempty"`
	NegativeOffset float64           `json:"negativeOffset,omitempty"`
	Edge           DirectedEdgeRef   `json:"edge,omitempty"`
	Offset         float64           `json:"offset,omitempty"`
}

// JSONDecoder decodes pre-resolved location references from JSON documents
//
//	{"type":"line","edges":[1,-2,3],"positiveOffset":12.5,"negativeOffset":0}
//	{"type":"point","edge":4,"offset":50}
//
// The document may be given as is or base64 encoded (standard or URL alphabet).
type JSONDecoder struct{}

// NewJSONDecoder creates a JSON location decoder
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode implements Decoder
func (d *JSONDecoder) Decode(encoded string) (Location, error) {
	data, err := unwrap(encoded)
	if err != nil {
		return nil, err
	}

	var doc locationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse location JSON: %w", err)
	}

	switch strings.ToLower(doc.Type) {
	case "line", "":
		line := &ReferencedLine{
			Edges:                    doc.Edges,
			PositiveOffsetPercentage: doc.PositiveOffset,
			NegativeOffsetPercentage: doc.NegativeOffset,
		}
		if err := line.Validate(); err != nil {
			return nil, err
		}
		return line, nil
	case "point":
		if err := doc.Edge.Validate(); err != nil {
			return nil, fmt.Errorf("point location: %w", err)
		}
		if doc.Offset < 0 || doc.Offset > 100 {
			return nil, fmt.Errorf("point location: offset %f out of range [0,100]", doc.Offset)
		}
		return &ReferencedPoint{Edge: doc.Edge, OffsetPercentage: doc.Offset}, nil
	default:
		return nil, fmt.Errorf("unsupported location type %q", doc.Type)
	}
}

// unwrap returns the JSON bytes of an encoded reference
func unwrap(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("empty location reference")
	}
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("location reference is neither JSON nor base64")
}

// EncodeJSON renders a location in the form JSONDecoder reads
func EncodeJSON(loc Location) (string, error) {
	var doc locationDocument
	switch l := loc.(type) {
	case *ReferencedLine:
		doc = locationDocument{
			Type:           "line",
			Edges:          l.Edges,
			PositiveOffset: l.PositiveOffsetPercentage,
			NegativeOffset: l.NegativeOffsetPercentage,
		}
	case *ReferencedPoint:
		doc = locationDocument{Type: "point", Edge: l.Edge, Offset: l.OffsetPercentage}
	default:
		return "", fmt.Errorf("unsupported location %T", loc)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
