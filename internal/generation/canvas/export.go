// Package canvas rasterizes editor snapshots for the generation request.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	ErrEmptyCanvas     = errors.New("canvas has no shapes")
	ErrInvalidSnapshot = errors.New("invalid canvas snapshot")
)

const (
	padding    = 32
	maxEdge    = 2048
	minEdge    = 64
	arrowHead  = 12
	defaultInk = "#1e1e1e"

	// glyphCacheEntries bounds the per-face glyph mask cache; truetype
	// allocates size² bytes per entry up front.
	glyphCacheEntries = 16
)

// Raster is an encoded PNG of the exported scene.
type Raster struct {
	Bytes  []byte
	Width  int
	Height int
}

// Exporter turns a snapshot into an image. It is the seam the request builder depends on.
type Exporter interface {
	ExportRaster(ctx context.Context, snapshot json.RawMessage, selection []string) (*Raster, error)
}

// Renderer draws snapshots with gg on a white background.
type Renderer struct {
	font *truetype.Font
}

func NewRenderer() (*Renderer, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	return &Renderer{font: f}, nil
}

// ExportRaster renders the selected shapes cropped to their bounding box.
func (r *Renderer) ExportRaster(ctx context.Context, snapshot json.RawMessage, selection []string) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := Decode(snapshot)
	if err != nil {
		return nil, err
	}
	shapes := doc.Select(selection)
	if len(shapes) == 0 {
		return nil, ErrEmptyCanvas
	}

	b := emptyBounds()
	for _, s := range shapes {
		s.extend(&b)
	}
	if !b.valid() {
		return nil, ErrEmptyCanvas
	}

	contentW := b.maxX - b.minX
	contentH := b.maxY - b.minY
	scale := 1.0
	if longest := math.Max(contentW, contentH) + 2*padding; longest > maxEdge {
		scale = maxEdge / longest
	}

	width := clampEdge(int(math.Ceil((contentW + 2*padding) * scale)))
	height := clampEdge(int(math.Ceil((contentH + 2*padding) * scale)))

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	dc.Scale(scale, scale)
	dc.Translate(padding-b.minX, padding-b.minY)

	faces := &faceCache{font: r.font}
	defer faces.close()
	for _, s := range shapes {
		r.draw(dc, faces, s)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return &Raster{Bytes: buf.Bytes(), Width: width, Height: height}, nil
}

func (r *Renderer) draw(dc *gg.Context, faces *faceCache, s Shape) {
	dc.SetColor(parseColor(s.Color))
	dc.SetLineWidth(s.strokeWidth())
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	switch strings.ToLower(s.Type) {
	case ShapeRect:
		x, y, w, h := normalizeRect(s.X, s.Y, s.W, s.H)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	case ShapeEllipse:
		x, y, w, h := normalizeRect(s.X, s.Y, s.W, s.H)
		dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
		dc.Stroke()
	case ShapeLine, ShapeDraw:
		r.polyline(dc, s)
	case ShapeArrow:
		r.polyline(dc, s)
		r.arrowHead(dc, s)
	case ShapeText:
		dc.SetFontFace(faces.get(s.fontSize()))
		dc.DrawStringAnchored(s.Text, s.X, s.Y, 0, 1)
	default:
		x, y, w, h := normalizeRect(s.X, s.Y, s.W, s.H)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	}
}

func (r *Renderer) polyline(dc *gg.Context, s Shape) {
	if len(s.Points) == 0 {
		return
	}
	dc.MoveTo(s.X+s.Points[0][0], s.Y+s.Points[0][1])
	for _, p := range s.Points[1:] {
		dc.LineTo(s.X+p[0], s.Y+p[1])
	}
	dc.Stroke()
}

func (r *Renderer) arrowHead(dc *gg.Context, s Shape) {
	n := len(s.Points)
	if n < 2 {
		return
	}
	from, to := s.Points[n-2], s.Points[n-1]
	angle := math.Atan2(to[1]-from[1], to[0]-from[0])
	tipX, tipY := s.X+to[0], s.Y+to[1]
	for _, off := range []float64{math.Pi * 5 / 6, -math.Pi * 5 / 6} {
		dc.MoveTo(tipX, tipY)
		dc.LineTo(tipX+arrowHead*math.Cos(angle+off), tipY+arrowHead*math.Sin(angle+off))
	}
	dc.Stroke()
}

// faceCache holds one face per pixel size for a single render. gg applies
// the context transform to glyphs, so sizes stay in scene units.
type faceCache struct {
	font  *truetype.Font
	faces map[int]font.Face
}

func (c *faceCache) get(size float64) font.Face {
	px := max(1, int(math.Round(size)))
	if f, ok := c.faces[px]; ok {
		return f
	}
	if c.faces == nil {
		c.faces = make(map[int]font.Face)
	}
	f := truetype.NewFace(c.font, &truetype.Options{
		Size:              float64(px),
		GlyphCacheEntries: glyphCacheEntries,
	})
	c.faces[px] = f
	return f
}

func (c *faceCache) close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
}

func normalizeRect(x, y, w, h float64) (float64, float64, float64, float64) {
	if w < 0 {
		x, w = x+w, -w
	}
	if h < 0 {
		y, h = y+h, -h
	}
	return x, y, w, h
}

func clampEdge(n int) int {
	if n < minEdge {
		return minEdge
	}
	if n > maxEdge {
		return maxEdge
	}
	return n
}

// parseColor accepts #rgb and #rrggbb; anything else falls back to the default ink.
func parseColor(hex string) color.Color {
	c, ok := ParseHex(hex)
	if !ok {
		c, _ = ParseHex(defaultInk)
	}
	return c
}

// ParseHex parses a #rgb or #rrggbb color.
func ParseHex(hex string) (color.NRGBA, bool) {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
