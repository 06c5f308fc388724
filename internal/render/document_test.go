package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

func TestDocument(t *testing.T) {
	html, err := String(context.Background(), "Landing <draft>", domain.Artifact{
		Markup: "<main><h1>Hi</h1></main>",
		Styles: "h1 { color: red; }",
		Script: "console.log('ready')",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>Landing &lt;draft&gt;</title>")
	assert.Contains(t, html, "<style>\nh1 { color: red; }\n</style>")
	assert.Contains(t, html, "<body>\n<main><h1>Hi</h1></main>")
	assert.Less(t, strings.Index(html, "<main>"), strings.Index(html, "<script>"))
	assert.Contains(t, html, "console.log('ready')")
}

func TestDocument_EmptyParts(t *testing.T) {
	html, err := String(context.Background(), "", domain.Artifact{Markup: "<p>x</p>"})
	require.NoError(t, err)

	assert.Contains(t, html, "<title>"+domain.UntitledBase+"</title>")
	assert.NotContains(t, html, "<style>")
	assert.NotContains(t, html, "<script>")
}

func TestDocument_CannotBreakOutOfBlocks(t *testing.T) {
	html, err := String(context.Background(), "t", domain.Artifact{
		Styles: "a{}</STYLE><b>",
		Script: "var s = '</script><i>';",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(strings.ToLower(html), "</style"))
	assert.Equal(t, 1, strings.Count(strings.ToLower(html), "</script"))
}

func TestDocument_ServedAsComponent(t *testing.T) {
	a := domain.Artifact{Markup: "<p>x</p>", Styles: "p{}"}
	want, err := String(context.Background(), "Home", a)
	require.NoError(t, err)

	h := templ.Handler(Document("Home", a), templ.WithContentType(ContentType))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, want, w.Body.String())
	assert.True(t, strings.HasSuffix(want, "</body>\n</html>\n"))
}
