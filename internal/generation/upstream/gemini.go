package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"

	maxResponseBytes = 8 << 20
)

// Backend sends one payload to a generative model and returns its raw text.
type Backend interface {
	Invoke(ctx context.Context, p *prompt.Payload) (string, error)
}

// GeminiBackend calls the generateContent REST endpoint.
type GeminiBackend struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

type GeminiOptions struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

func NewGeminiBackend(opt GeminiOptions) *GeminiBackend {
	if strings.TrimSpace(opt.BaseURL) == "" {
		opt.BaseURL = DefaultGeminiBaseURL
	}
	if strings.TrimSpace(opt.Model) == "" {
		opt.Model = DefaultGeminiModel
	}
	if opt.HTTPClient == nil {
		// The Client enforces the ceiling through the request context.
		opt.HTTPClient = &http.Client{}
	}
	return &GeminiBackend{
		baseURL:    strings.TrimRight(opt.BaseURL, "/"),
		model:      opt.Model,
		apiKey:     opt.APIKey,
		httpClient: opt.HTTPClient,
	}
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiBackend) Invoke(ctx context.Context, p *prompt.Payload) (string, error) {
	if p == nil {
		return "", errors.New("nil payload")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: p.Instructions},
				{InlineData: &geminiInlineData{
					MimeType: p.MimeType,
					Data:     base64.StdEncoding.EncodeToString(p.Image),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &GenerationError{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &GenerationError{Reason: ReasonTransport, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return "", statusError(resp.StatusCode, raw)
	}

	return extractText(raw)
}

func statusError(status int, raw []byte) *GenerationError {
	detail := ""
	var eb geminiErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		detail = eb.Error.Message
	}

	reason := ReasonRejected
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		reason = ReasonTransport
	}
	return &GenerationError{Reason: reason, Status: status, Detail: detail}
}

func extractText(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", &GenerationError{Reason: ReasonUnknown, Detail: "empty response body"}
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", &GenerationError{Reason: ReasonUnknown, Detail: "undecodable response", Err: err}
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &GenerationError{Reason: ReasonRejected, Detail: "prompt blocked: " + gr.PromptFeedback.BlockReason}
	}
	if len(gr.Candidates) == 0 {
		return "", &GenerationError{Reason: ReasonUnknown, Detail: "no candidates"}
	}

	cand := gr.Candidates[0]
	switch strings.ToUpper(cand.FinishReason) {
	case "MAX_TOKENS":
		return "", &GenerationError{Reason: ReasonTruncated, Detail: "output hit the token limit"}
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "", &GenerationError{Reason: ReasonRejected, Detail: "finish reason " + cand.FinishReason}
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &GenerationError{Reason: ReasonUnknown, Detail: "empty candidate text"}
	}
	return sb.String(), nil
}
