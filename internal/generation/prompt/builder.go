// Package prompt turns editor state into a model-ready generation payload.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

const MimePNG = "image/png"

// Input is everything the builder needs from the editor.
type Input struct {
	Snapshot  json.RawMessage
	Selection []string
	Style     Style
	// Previous, when non-empty, switches to the incremental edit path.
	Previous    *domain.Artifact
	Instruction string
}

// Payload is the model request: one image and the instruction text.
type Payload struct {
	Image        []byte
	MimeType     string
	Width        int
	Height       int
	Instructions string
	Incremental  bool
}

type Builder struct {
	exporter canvas.Exporter
}

func NewBuilder(exporter canvas.Exporter) *Builder {
	return &Builder{exporter: exporter}
}

// Build rasterizes the snapshot and renders the instruction text. An empty canvas
// fails with canvas.ErrEmptyCanvas before anything is sent upstream.
func (b *Builder) Build(ctx context.Context, in Input) (*Payload, error) {
	raster, err := b.exporter.ExportRaster(ctx, in.Snapshot, in.Selection)
	if err != nil {
		return nil, err
	}

	incremental := in.Previous != nil && !in.Previous.IsEmpty()
	text, err := Instructions(in.Style, in.Previous, in.Instruction)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Image:        raster.Bytes,
		MimeType:     MimePNG,
		Width:        raster.Width,
		Height:       raster.Height,
		Instructions: text,
		Incremental:  incremental,
	}, nil
}

type templateData struct {
	Style       Style
	Guide       string
	Previous    *domain.Artifact
	Instruction string
}

// Instructions renders the instruction text. The output is a pure function of its inputs.
func Instructions(style Style, previous *domain.Artifact, instruction string) (string, error) {
	st := style.Normalize()
	data := templateData{
		Style:       st,
		Guide:       st.guide(),
		Instruction: strings.TrimSpace(instruction),
	}

	tpl := freshTemplate
	if previous != nil && !previous.IsEmpty() {
		data.Previous = previous
		tpl = incrementalTemplate
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return buf.String(), nil
}

const interpretRules = `HOW TO READ THE WIREFRAME
- Red text is an annotation describing intent. Use it to decide what to build; never show it on the page.
- Text in any other color is real content and must appear on the page.
- A plain box is an image placeholder (https://picsum.photos/WIDTH/HEIGHT) unless its label says otherwise.
- A box labelled "button" is a button. Boxes near the top or labelled "nav" form the navigation bar.
- Circles are avatars or icons. Scribbles and horizontal lines are paragraphs.
- Keep positions, relative sizes and groupings. Draw exactly as many elements as the sketch shows.

STYLE
Preset: {{.Style.Preset}}
{{.Guide}}
Background color: {{.Style.BackgroundColor}}
Accent color: {{.Style.AccentColor}}
Pick readable text colors against the background and apply the palette consistently.
`

const outputRules = `OUTPUT
Reply with a single JSON object and nothing else:
{"html": "...", "css": "...", "js": "...", "analysis": {"annotations": [], "layout": "", "elements": []}{{if .Previous}}, "changes": "..."{{end}}}
- "html" is body content only. No doctype, html, head or body tags.
- "css" is the complete stylesheet. "js" may be empty.
`

var freshTemplate = template.Must(template.New("fresh").Parse(
	`You turn a hand-drawn wireframe into a polished single-page website.

` + interpretRules + `
{{if .Instruction}}REQUEST
{{.Instruction}}

{{end}}` + outputRules))

var incrementalTemplate = template.Must(template.New("incremental").Parse(
	`You are updating an existing website to match an edited wireframe.

` + interpretRules + `
CURRENT WEBSITE
<html>
{{.Previous.Markup}}
</html>
<css>
{{.Previous.Styles}}
</css>
<js>
{{.Previous.Script}}
</js>

{{if .Instruction}}REQUESTED CHANGE
{{.Instruction}}

{{end}}Return a complete replacement for all three fields. Repeat the full stylesheet including rules you did not change; partial output is discarded.

` + outputRules))
