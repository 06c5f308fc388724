// Package render assembles an artifact into a standalone HTML document.
package render

import (
	"bytes"
	"context"
	"regexp"

	"github.com/a-h/templ"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

const ContentType = "text/html; charset=utf-8"

var (
	closeStyle  = regexp.MustCompile(`(?i)</style`)
	closeScript = regexp.MustCompile(`(?i)</script`)
)

const docHead = "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n" +
	"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n"

// Document is a minimal HTML5 shell: styles inlined in the head, markup as
// the body, and the script appended at the end of the body. The title is
// escaped; artifact parts are trusted output and written raw.
func Document(title string, a domain.Artifact) templ.Component {
	if title == "" {
		title = domain.UntitledBase
	}
	parts := []templ.Component{
		templ.Raw(docHead),
		templ.Raw("<title>" + templ.EscapeString(title) + "</title>\n"),
	}
	if a.Styles != "" {
		parts = append(parts, block("style", closeStyle.ReplaceAllString(a.Styles, `<\/style`)))
	}
	parts = append(parts, templ.Raw("</head>\n<body>\n"+a.Markup+"\n"))
	if a.Script != "" {
		parts = append(parts, block("script", closeScript.ReplaceAllString(a.Script, `<\/script`)))
	}
	parts = append(parts, templ.Raw("</body>\n</html>\n"))
	return templ.Join(parts...)
}

func block(tag, body string) templ.Component {
	return templ.Raw("<" + tag + ">\n" + body + "\n</" + tag + ">\n")
}

// String renders the document to a string.
func String(ctx context.Context, title string, a domain.Artifact) (string, error) {
	var buf bytes.Buffer
	if err := Document(title, a).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
