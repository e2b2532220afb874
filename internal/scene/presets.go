package scene

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type library struct {
	Scenes []Document `yaml:"scenes"`
}

var loadPresets = sync.OnceValues(func() (map[string]*Scene, error) {
	docs, err := decodeLibrary(presetsYAML)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Scene, len(docs))
	for _, doc := range docs {
		s, err := New(doc)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", doc.ID, err)
		}
		out[s.ID()] = s
	}

	return out, nil
})

func decodeLibrary(data []byte) ([]Document, error) {
	var lib library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to decode scene library: %w", err)
	}
	return lib.Scenes, nil
}

// Preset returns a canonical template scene: interview, gaming, presentation,
// talking_head or green_screen.
func Preset(name string) (*Scene, bool) {
	presets, err := loadPresets()
	if err != nil {
		return nil, false
	}
	s, ok := presets[name]
	return s, ok
}

// Presets lists the canonical templates sorted by id.
func Presets() []*Scene {
	presets, err := loadPresets()
	if err != nil {
		return nil
	}

	out := make([]*Scene, 0, len(presets))
	for _, s := range presets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

// LoadLibrary reads a YAML document with a top-level "scenes" list and builds every scene.
func LoadLibrary(r io.Reader) ([]*Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene library: %w", err)
	}

	docs, err := decodeLibrary(data)
	if err != nil {
		return nil, err
	}

	out := make([]*Scene, 0, len(docs))
	for _, doc := range docs {
		s, err := New(doc)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", doc.ID, err)
		}
		out = append(out, s)
	}

	return out, nil
}
