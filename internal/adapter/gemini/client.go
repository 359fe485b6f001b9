package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"sojourn/backend/internal/rag"
)

// Client talks to the Gemini API. It implements rag.Oracle and the
// vision extraction used by image ingestion.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string, temperature float32, maxTokens int32) (string, error) {
	model := c.generativeModel(systemPrompt, temperature, maxTokens)

	slog.DebugContext(ctx, "generating completion", "model", c.model, "length", len(userMessage))
	res, err := model.GenerateContent(ctx, genai.Text(userMessage))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "error", err)
		return "", err
	}

	return responseText(res)
}

// CompleteJSON forces a JSON response body. Temperature is pinned low;
// the callers parse the bytes strictly and fall back on their own.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userMessage string, maxTokens int32) ([]byte, error) {
	model := c.generativeModel(systemPrompt, 0, maxTokens)
	model.ResponseMIMEType = "application/json"

	res, err := model.GenerateContent(ctx, genai.Text(userMessage))
	if err != nil {
		slog.ErrorContext(ctx, "json completion failed", "error", err)
		return nil, err
	}

	text, err := responseText(res)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (c *Client) StreamComplete(ctx context.Context, systemPrompt, userMessage string, temperature float32, maxTokens int32) (<-chan rag.Token, error) {
	model := c.generativeModel(systemPrompt, temperature, maxTokens)

	iter := model.GenerateContentStream(ctx, genai.Text(userMessage))

	out := make(chan rag.Token)
	go func() {
		defer close(out)
		for {
			res, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				select {
				case out <- rag.Token{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			text, err := responseText(res)
			if err != nil {
				continue
			}
			select {
			case out <- rag.Token{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// DescribeImage asks the vision model to transcribe and describe image
// content. format is the bare subtype, e.g. "png" or "jpeg".
func (c *Client) DescribeImage(ctx context.Context, prompt string, image []byte, format string, maxTokens int32) (string, error) {
	model := c.client.GenerativeModel(c.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}

	slog.DebugContext(ctx, "describing image", "model", c.model, "format", format, "bytes", len(image))
	res, err := model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "vision extraction failed", "error", err)
		return "", err
	}

	return responseText(res)
}

func (c *Client) generativeModel(systemPrompt string, temperature float32, maxTokens int32) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.model)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	model.SetTemperature(temperature)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	return model
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
