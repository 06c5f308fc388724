package prompt

import (
	"strings"

	"github.com/aidanjnn/sketchy/internal/generation/canvas"
)

const (
	PresetModern        = "modern"
	PresetMinimalist    = "minimalist"
	PresetRetro         = "retro"
	PresetPlayful       = "playful"
	PresetProfessional  = "professional"
	PresetBrutalist     = "brutalist"
	PresetGlassmorphism = "glassmorphism"

	DefaultBackground = "#ffffff"
	DefaultAccent     = "#3b82f6"
)

var presetGuides = map[string]string{
	PresetModern:        "Clean lines, subtle shadows and soft rounded corners. Modern typography with refined spacing.",
	PresetMinimalist:    "Generous whitespace and only essential elements. No decoration; a light, airy page.",
	PresetRetro:         "80s/90s feel with warm oranges, teals and purples, chunky borders and nostalgic type.",
	PresetPlayful:       "Bold and lively. Gradients, CSS transitions, vibrant colors and a strong visual hierarchy.",
	PresetProfessional:  "Corporate and restrained. Neutral palette, clear grid, conservative type scale.",
	PresetBrutalist:     "Raw and unconventional. Heavy type, stark contrast, asymmetric layout, thick borders, square corners.",
	PresetGlassmorphism: "Frosted glass panels with backdrop blur, translucent backgrounds, thin borders and layered depth.",
}

var presetAliases = map[string]string{
	"minimalistic": PresetMinimalist,
	"dynamic":      PresetPlayful,
}

// Style is the user's visual direction for a generation.
type Style struct {
	Preset          string `json:"preset"`
	BackgroundColor string `json:"background_color"`
	AccentColor     string `json:"accent_color"`
}

// Presets lists the accepted preset names in a stable order.
func Presets() []string {
	return []string{
		PresetModern, PresetMinimalist, PresetRetro, PresetPlayful,
		PresetProfessional, PresetBrutalist, PresetGlassmorphism,
	}
}

// Normalize resolves aliases and fills defaults. Unknown presets become modern;
// malformed colors fall back to the defaults.
func (s Style) Normalize() Style {
	p := strings.ToLower(strings.TrimSpace(s.Preset))
	if alias, ok := presetAliases[p]; ok {
		p = alias
	}
	if _, ok := presetGuides[p]; !ok {
		p = PresetModern
	}
	return Style{
		Preset:          p,
		BackgroundColor: normalizeColor(s.BackgroundColor, DefaultBackground),
		AccentColor:     normalizeColor(s.AccentColor, DefaultAccent),
	}
}

func (s Style) guide() string {
	return presetGuides[s.Preset]
}

func normalizeColor(c, def string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	if _, ok := canvas.ParseHex(c); !ok {
		return def
	}
	return c
}
