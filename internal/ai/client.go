package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

var (
	ErrMissingAPIKey = errors.New("ai api key is not configured")
	ErrEmptyResponse = errors.New("ai service returned no content")
)

// Client talks to an OpenAI-compatible chat completions endpoint and asks
// for streamed output.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *logrus.Logger
}

func NewClient(config models.AIConfig, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.APIURL != "" {
		apiConfig.BaseURL = strings.TrimRight(config.APIURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		api:         openai.NewClientWithConfig(apiConfig),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: float32(config.Temperature),
		logger:      logger,
	}, nil
}

// Generate produces the remediation write-up for a finished scan. It is the
// only call the scanner makes to the service, and any error is returned as is.
func (c *Client) Generate(ctx context.Context, findings []models.Finding, url, summary string) (string, error) {
	prompt := BuildPrompt(findings, url, summary)
	c.logger.WithFields(logrus.Fields{
		"url":      url,
		"findings": len(findings),
		"model":    c.model,
	}).Info("Requesting recommendations")
	return c.complete(ctx, prompt)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("ai service request failed: %w", err)
	}
	defer stream.Close()

	content, err := c.collect(stream)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", ErrEmptyResponse
	}

	c.logger.WithFields(logrus.Fields{
		"chars":    len(content),
		"duration": time.Since(start).String(),
	}).Info("Recommendations received")
	return content, nil
}

// collect concatenates the delta content of the stream up to [DONE] or the end
// of the body. Chunks that are not valid JSON are skipped.
func (c *Client) collect(stream *openai.ChatCompletionStream) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.logger.WithError(err).Debug("Skipping malformed stream chunk")
				continue
			}
			return "", fmt.Errorf("read ai stream: %w", err)
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
}
