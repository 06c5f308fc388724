package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Document is the persisted editor scene: a flat list of vector shapes.
type Document struct {
	Shapes []Shape `json:"shapes"`
}

// Shape is one vector element. Points are offsets from (X, Y) for
// line, arrow and draw shapes.
type Shape struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	W           float64      `json:"w"`
	H           float64      `json:"h"`
	Points      [][2]float64 `json:"points,omitempty"`
	Color       string       `json:"color,omitempty"`
	Text        string       `json:"text,omitempty"`
	FontSize    float64      `json:"fontSize,omitempty"`
	StrokeWidth float64      `json:"strokeWidth,omitempty"`
}

const (
	ShapeRect    = "rect"
	ShapeEllipse = "ellipse"
	ShapeLine    = "line"
	ShapeArrow   = "arrow"
	ShapeDraw    = "draw"
	ShapeText    = "text"
)

const (
	defaultFontSize = 20
	// MaxFontSize caps the text size taken from a snapshot.
	MaxFontSize = 256
)

// Decode parses a snapshot. A missing or null snapshot yields an empty document.
func Decode(snapshot json.RawMessage) (*Document, error) {
	trimmed := bytes.TrimSpace(snapshot)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &doc, nil
}

// Select returns the shapes whose ids are in selection, or all shapes when
// selection is empty.
func (d *Document) Select(selection []string) []Shape {
	if len(selection) == 0 {
		return d.Shapes
	}
	want := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		want[id] = struct{}{}
	}
	out := make([]Shape, 0, len(selection))
	for _, s := range d.Shapes {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

type bounds struct {
	minX, minY, maxX, maxY float64
}

func emptyBounds() bounds {
	return bounds{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
}

func (b *bounds) add(x, y float64) {
	b.minX = math.Min(b.minX, x)
	b.minY = math.Min(b.minY, y)
	b.maxX = math.Max(b.maxX, x)
	b.maxY = math.Max(b.maxY, y)
}

func (b bounds) valid() bool {
	return !math.IsInf(b.minX, 1) && b.maxX >= b.minX && b.maxY >= b.minY
}

func (s Shape) extend(b *bounds) {
	switch strings.ToLower(s.Type) {
	case ShapeLine, ShapeArrow, ShapeDraw:
		b.add(s.X, s.Y)
		for _, p := range s.Points {
			b.add(s.X+p[0], s.Y+p[1])
		}
	case ShapeText:
		w, h := s.W, s.H
		size := s.fontSize()
		if w == 0 {
			w = float64(len([]rune(s.Text))) * size * 0.6
		}
		if h == 0 {
			h = size * 1.4
		}
		b.add(s.X, s.Y)
		b.add(s.X+w, s.Y+h)
	default:
		b.add(s.X, s.Y)
		b.add(s.X+s.W, s.Y+s.H)
	}
}

func (s Shape) fontSize() float64 {
	switch {
	case s.FontSize > MaxFontSize:
		return MaxFontSize
	case s.FontSize > 0:
		return s.FontSize
	}
	return defaultFontSize
}

func (s Shape) strokeWidth() float64 {
	if s.StrokeWidth > 0 {
		return s.StrokeWidth
	}
	return 2
}
