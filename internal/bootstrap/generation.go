package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aidanjnn/sketchy/config"
	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/generation/upstream"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
)

// NewPipeline wires the rasterizer, the Gemini backend and the generation
// lock. A nil rdb falls back to an in-process lock.
func NewPipeline(cfg *config.GenerationConfig, rdb *redis.Client, projects genservice.Projects, versions genservice.Versions, log *logger.Logger) (*genservice.Pipeline, error) {
	renderer, err := canvas.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("canvas renderer: %w", err)
	}

	var locker upstream.Locker = upstream.NewMemoryLocker()
	if rdb != nil {
		locker = upstream.NewRedisLocker(rdb)
	}

	backend := upstream.NewGeminiBackend(upstream.GeminiOptions{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	client := upstream.NewClient(backend, locker, cfg.Timeout, log)

	return genservice.NewPipeline(prompt.NewBuilder(renderer), client, projects, versions, log), nil
}
