package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to any server implementing the OpenAI chat completions
// and embeddings endpoints, including Ollama.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
	log        *zap.Logger
}

// NewOpenAIProvider creates a provider. The HTTP client has no timeout of its own;
// callers bound each call through the context.
func NewOpenAIProvider(apiKey, baseURL, model, embedModel string, log *zap.Logger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Transport: http.DefaultTransport, Timeout: 10 * time.Minute},
		log:        logger.OrNop(log),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate implements LLMProvider.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := map[string]interface{}{
		"model":       p.model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSON {
		body["response_format"] = map[string]interface{}{"type": "json_object"}
	}

	respBody, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unmarshaling response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Err: errors.New("empty response from API: no choices")}
	}

	text := resp.Choices[0].Message.Content
	p.log.Debug("openai response received",
		zap.String("model", p.model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.String("response", logger.TruncateForLog(text, 300)),
	)
	return text, nil
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Embedder.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	respBody, err := p.post(ctx, "/embeddings", map[string]interface{}{
		"model": p.embedModel,
		"input": Truncate(text, maxEmbedChars),
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unmarshaling embeddings: %w", err)}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: errors.New("empty embedding result")}
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Err:        errors.New(logger.TruncateForLog(string(respBody), 500)),
		}
	}

	return respBody, nil
}
