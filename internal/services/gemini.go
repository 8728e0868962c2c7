package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/cv-matcher/internal/logger"
)

// maxEmbedChars keeps embedding requests within the model's input window.
const maxEmbedChars = 40000

// GeminiProvider is both an LLMProvider and an Embedder backed by the Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	modelName  string
	embedModel string
	log        *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model, embedModel string, log *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &GeminiProvider{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
		log:        logger.OrNop(log),
	}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

// Generate implements LLMProvider.
func (g *GeminiProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 4096,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(req.Prompt), config)
	if err != nil {
		return "", g.wrapError(err)
	}
	if resp == nil {
		return "", &ProviderError{Provider: g.Name(), Err: errors.New("nil response")}
	}

	text := resp.Text()
	if text == "" {
		reason := "no text content in response"
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			reason = fmt.Sprintf("%s (finish reason %s)", reason, resp.Candidates[0].FinishReason)
		}
		return "", &ProviderError{Provider: g.Name(), Err: errors.New(reason)}
	}

	g.log.Debug("gemini response received",
		zap.String("model", g.modelName),
		zap.String("response", logger.TruncateForLog(text, 300)),
	)

	return text, nil
}

// Embed implements Embedder.
func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text, maxEmbedChars)

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, g.wrapError(err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, &ProviderError{Provider: g.Name(), Err: errors.New("empty embedding result")}
	}

	return result.Embeddings[0].Values, nil
}

func (g *GeminiProvider) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: g.Name(), StatusCode: apiErr.Code, Err: err}
	}
	return &ProviderError{Provider: g.Name(), Err: err}
}
