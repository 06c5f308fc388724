package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

type stubExporter struct {
	calls int
	err   error
}

func (s *stubExporter) ExportRaster(ctx context.Context, snapshot json.RawMessage, selection []string) (*canvas.Raster, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &canvas.Raster{Bytes: []byte("png"), Width: 100, Height: 80}, nil
}

func TestBuild_Fresh(t *testing.T) {
	b := NewBuilder(&stubExporter{})

	p, err := b.Build(context.Background(), Input{
		Snapshot: json.RawMessage(`{"shapes":[]}`),
		Style:    Style{Preset: "retro", AccentColor: "#ff0000"},
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("png"), p.Image)
	assert.Equal(t, MimePNG, p.MimeType)
	assert.Equal(t, 100, p.Width)
	assert.False(t, p.Incremental)
	assert.Contains(t, p.Instructions, "Preset: retro")
	assert.Contains(t, p.Instructions, "Accent color: #ff0000")
	assert.Contains(t, p.Instructions, "Background color: #ffffff")
	assert.NotContains(t, p.Instructions, "CURRENT WEBSITE")
}

func TestBuild_Incremental(t *testing.T) {
	b := NewBuilder(&stubExporter{})
	prev := &domain.Artifact{Markup: "<h1>Old</h1>", Styles: "h1{color:red}", Script: ""}

	p, err := b.Build(context.Background(), Input{
		Style:       Style{Preset: "modern"},
		Previous:    prev,
		Instruction: "make the heading blue",
	})
	require.NoError(t, err)

	assert.True(t, p.Incremental)
	assert.Contains(t, p.Instructions, "<h1>Old</h1>")
	assert.Contains(t, p.Instructions, "h1{color:red}")
	assert.Contains(t, p.Instructions, "make the heading blue")
	assert.Contains(t, p.Instructions, "full stylesheet")
	assert.Contains(t, p.Instructions, `"changes"`)
}

func TestBuild_EmptyPreviousIsFresh(t *testing.T) {
	b := NewBuilder(&stubExporter{})

	p, err := b.Build(context.Background(), Input{Previous: &domain.Artifact{}})
	require.NoError(t, err)
	assert.False(t, p.Incremental)
}

func TestBuild_EmptyCanvasStopsEarly(t *testing.T) {
	exp := &stubExporter{err: canvas.ErrEmptyCanvas}
	b := NewBuilder(exp)

	_, err := b.Build(context.Background(), Input{})
	assert.True(t, errors.Is(err, canvas.ErrEmptyCanvas))
	assert.Equal(t, 1, exp.calls)
}

func TestInstructions_Deterministic(t *testing.T) {
	st := Style{Preset: "glassmorphism", BackgroundColor: "#000"}
	a, err := Instructions(st, nil, "")
	require.NoError(t, err)
	b, err := Instructions(st, nil, "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStyleNormalize(t *testing.T) {
	tests := []struct {
		in   Style
		want Style
	}{
		{Style{}, Style{Preset: PresetModern, BackgroundColor: DefaultBackground, AccentColor: DefaultAccent}},
		{Style{Preset: "Minimalistic"}, Style{Preset: PresetMinimalist, BackgroundColor: DefaultBackground, AccentColor: DefaultAccent}},
		{Style{Preset: "dynamic"}, Style{Preset: PresetPlayful, BackgroundColor: DefaultBackground, AccentColor: DefaultAccent}},
		{Style{Preset: "vaporwave"}, Style{Preset: PresetModern, BackgroundColor: DefaultBackground, AccentColor: DefaultAccent}},
		{Style{Preset: "brutalist", BackgroundColor: "FFF", AccentColor: "red"}, Style{Preset: PresetBrutalist, BackgroundColor: "#fff", AccentColor: DefaultAccent}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize(), "%+v", tt.in)
	}
}

func TestPresetsHaveGuides(t *testing.T) {
	for _, p := range Presets() {
		assert.NotEmpty(t, presetGuides[p], p)
	}
}
