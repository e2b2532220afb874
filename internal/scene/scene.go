// Package scene describes what the compositor renders: a named, ordered set of sources
// with their transforms. A *Scene is immutable once built; switching scenes replaces the
// reference.
package scene

import (
	"encoding/json"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sharetube/studio/internal/fault"
)

var ErrInvalidScene = fault.New(fault.InvalidScene, "invalid scene")

// Document is the editable form of a scene as it travels over the API and in YAML files.
type Document struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Width and Height are the reference canvas the coordinates were authored for.
	// Zero means coordinates are in output pixels.
	Width   int      `json:"width,omitempty" yaml:"width"`
	Height  int      `json:"height,omitempty" yaml:"height"`
	Sources []Source `json:"sources" yaml:"sources"`
}

func (d Document) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&d.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&d.Width, validation.Min(0), validation.Max(7680)),
		validation.Field(&d.Height, validation.Min(0), validation.Max(4320)),
		validation.Field(&d.Sources),
	); err != nil {
		return err
	}

	if (d.Width == 0) != (d.Height == 0) {
		return validation.Errors{"width": fmt.Errorf("width and height must be set together")}
	}

	seen := make(map[string]struct{}, len(d.Sources))
	for _, src := range d.Sources {
		if _, ok := seen[src.ID]; ok {
			return validation.Errors{"sources": fmt.Errorf("duplicate source id %q", src.ID)}
		}
		seen[src.ID] = struct{}{}
	}

	return nil
}

type Scene struct {
	doc    Document
	render []Source
}

// New validates doc and freezes it into a scene. Sources render in ascending z; equal z
// keeps document order.
func New(doc Document) (*Scene, error) {
	if err := doc.Validate(); err != nil {
		return nil, fault.Wrap(ErrInvalidScene, err)
	}

	doc.Sources = append([]Source(nil), doc.Sources...)
	render := append([]Source(nil), doc.Sources...)
	sort.SliceStable(render, func(i, j int) bool {
		return render[i].Z < render[j].Z
	})

	return &Scene{doc: doc, render: render}, nil
}

func (s *Scene) ID() string   { return s.doc.ID }
func (s *Scene) Name() string { return s.doc.Name }

// Canvas returns the reference canvas, zero when unset.
func (s *Scene) Canvas() (int, int) { return s.doc.Width, s.doc.Height }

// RenderOrder returns the sources in drawing order. Callers must not modify the result.
func (s *Scene) RenderOrder() []Source {
	return s.render
}

// Document returns an editable copy of the scene.
func (s *Scene) Document() Document {
	doc := s.doc
	doc.Sources = append([]Source(nil), s.doc.Sources...)
	return doc
}

func (s *Scene) Len() int {
	return len(s.doc.Sources)
}

func (s *Scene) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.doc)
}

// Duplicate copies s under a new id and name.
func Duplicate(s *Scene, id, name string) (*Scene, error) {
	doc := s.Document()
	doc.ID = id
	doc.Name = name
	return New(doc)
}
