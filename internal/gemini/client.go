// Package gemini implements the language-model collaborator on top of
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/resilience"
)

// Client generates text completions with a single Gemini model.
type Client struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
	breaker       *resilience.CircuitBreaker
}

// NewClient creates a Gemini client from cfg.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	gi, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "gemini",
		MaxFailures: cfg.BreakerFailures,
		Cooldown:    cfg.BreakerCooldown,
		Logger:      logger,
	})
	return &Client{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.ModelName,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
		breaker:       breaker,
	}, nil
}

// Generate sends prompt as a single user turn and returns the model's text.
// After repeated failures the client stops calling the API for a cooldown
// period and fails fast with resilience.ErrCircuitOpen.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.log.DebugContext(ctx, "Generating completion", "prompt_length", len(prompt))

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.generateContentWithRetries(ctx, contents)
		if err != nil {
			return err
		}
		text, err = c.extractText(ctx, resp)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.log.WarnContext(ctx, "Gemini circuit open, skipping request")
	}
	return text, err
}

func (c *Client) generateContentWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		code, retriable := retriableCode(err)
		if !retriable {
			c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}
		if i == c.maxRetries {
			break
		}

		c.log.WarnContext(ctx, "Retrying Gemini API call", "attempt", i+1, "max_retries", c.maxRetries, "delay", c.retryDelay, "code", code)
		if err := sleep(ctx, c.retryDelay); err != nil {
			return nil, fmt.Errorf("gemini retry interrupted: %w", err)
		}
	}

	c.log.ErrorContext(ctx, "Gemini API call failed after max retries", "error", lastErr)
	return nil, fmt.Errorf("gemini API call failed after %d retries: %w", c.maxRetries, lastErr)
}

// retriableCode reports whether err is a server-side APIError worth retrying.
func retriableCode(err error) (int, bool) {
	var code int
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return 0, false
	}
	return code, code == http.StatusInternalServerError || code == http.StatusServiceUnavailable
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("model returned no content, finish reason: %s", finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}
