package batch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

// Request is one line reference with the attributes to apply along it
type Request struct {
	ID         string    `yaml:"id,omitempty"`
	Line       string    `yaml:"line"`
	Attributes attrs.Set `yaml:"attributes"`
	// Reverse disables the reversal transform for this request when false
	Reverse *bool `yaml:"reverse,omitempty"`
}

// File is the YAML form of a batch
//
//	requests:
//	  - id: roadworks-17
//	    line: '{"edges":[12,-13],"positiveOffset":4.5}'
//	    attributes:
//	      maxspeed: "30"
//	      roadworks:fwd: "yes"
type File struct {
	Requests []Request `yaml:"requests"`
}

// Parse reads batch requests from YAML
func Parse(data []byte) ([]Request, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	for i, r := range f.Requests {
		if r.Line == "" {
			return nil, fmt.Errorf("request %d (%s): line is required", i, r.name(i))
		}
		if r.Attributes.Len() == 0 {
			return nil, fmt.Errorf("request %d (%s): attributes are required", i, r.name(i))
		}
	}
	return f.Requests, nil
}

// LoadFile reads batch requests from a YAML file
func LoadFile(path string) ([]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Parse(data)
}

func (r Request) name(i int) string {
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("#%d", i+1)
}
