package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/matthewjhunter/wayfinder/internal/window"
	"github.com/ollama/ollama/api"
	"github.com/tsawler/prose/v3"
)

// ollamaClient is the part of *api.Client the service uses.
type ollamaClient interface {
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
	Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error)
}

// TextCompletionService is the language-model collaborator: embeddings,
// completions, token counting and the structured prompts built on them.
type TextCompletionService interface {
	// GetEmbedding returns nil when the embedding cannot be produced; the
	// failure is logged, not returned.
	GetEmbedding(ctx context.Context, text string) []float32

	// GetCompletion returns nil without calling the model when userText is
	// shorter than minTextLength characters.
	GetCompletion(ctx context.Context, systemPrompt, userText string, minTextLength int, jsonResponse bool) (*Completion, error)

	CountTokens(text string) int
	GetArticleSummarization(ctx context.Context, text string) (*ArticleSummary, error)
	GetThemeSummarization(ctx context.Context, texts []string) (*ThemeSummary, error)
	GetArticleGraph(ctx context.Context, text, articleID string) (string, error)
}

// Completion is a model response. JSON is set when a structured response
// was requested.
type Completion struct {
	Text string
	JSON json.RawMessage
}

// Decode unmarshals the structured response into v.
func (c *Completion) Decode(v any) error {
	if len(c.JSON) == 0 {
		return fmt.Errorf("completion has no JSON body")
	}
	return json.Unmarshal(c.JSON, v)
}

type Options struct {
	CompletionModel string
	EmbeddingModel  string
	ContextWindow   int
	MinTextLength   int
	MaxThemes       int
	MaxEntities     int
}

// Service implements TextCompletionService on Ollama.
type Service struct {
	client     ollamaClient
	embedder   *Embedder
	prompts    *PromptLoader
	opts       Options
	tokenCount func(string) int
}

var _ TextCompletionService = (*Service)(nil)

// NewService connects to the Ollama server at baseURL, or the one named
// by OLLAMA_HOST when baseURL is empty.
func NewService(baseURL string, prompts *PromptLoader, opts Options) (*Service, error) {
	var client *api.Client
	if baseURL != "" {
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}
	return newService(client, prompts, opts), nil
}

func newService(client ollamaClient, prompts *PromptLoader, opts Options) *Service {
	if prompts == nil {
		prompts = NewPromptLoader(nil)
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 16000
	}
	if opts.MaxThemes <= 0 {
		opts.MaxThemes = 5
	}
	if opts.MaxEntities <= 0 {
		opts.MaxEntities = 20
	}
	return &Service{
		client:     client,
		embedder:   newEmbedder(client, opts.EmbeddingModel),
		prompts:    prompts,
		opts:       opts,
		tokenCount: CountTokens,
	}
}

func (s *Service) GetEmbedding(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	vec, err := embedding.Single(ctx, s.embedder, text)
	if err != nil {
		log.Printf("llm: embedding failed: %v", err)
		return nil
	}
	return vec
}

func (s *Service) GetCompletion(ctx context.Context, systemPrompt, userText string, minTextLength int, jsonResponse bool) (*Completion, error) {
	return s.complete(ctx, "", systemPrompt, userText, minTextLength, jsonResponse, 0)
}

func (s *Service) complete(ctx context.Context, pt PromptType, system, user string, minTextLength int, jsonResponse bool, temperature float64) (*Completion, error) {
	if utf8.RuneCountInString(strings.TrimSpace(user)) < minTextLength {
		return nil, nil
	}

	req := &api.GenerateRequest{
		Model:  s.opts.CompletionModel,
		System: system,
		Prompt: user,
		Stream: new(bool), // false
		Options: map[string]any{
			"num_ctx": s.opts.ContextWindow,
		},
	}
	if temperature > 0 {
		req.Options["temperature"] = temperature
	}
	if jsonResponse {
		req.Format = json.RawMessage(`"json"`)
	}

	var fullResponse strings.Builder
	err := s.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	text := strings.TrimSpace(fullResponse.String())
	c := &Completion{Text: text}
	if jsonResponse {
		raw := extractJSON(text)
		if !json.Valid([]byte(raw)) {
			return nil, &ResponseError{Prompt: pt, Raw: text}
		}
		c.JSON = json.RawMessage(raw)
	}
	return c, nil
}

// completePrompt renders the configured prompt for pt as the system prompt
// and sends userText, expecting JSON back.
func (s *Service) completePrompt(ctx context.Context, pt PromptType, userText string, minTextLength int, data any) (*Completion, error) {
	tmpl, err := s.prompts.GetPrompt(pt)
	if err != nil {
		return nil, err
	}
	system, err := ExecutePrompt(tmpl, data)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, pt, system, s.fitText(userText), minTextLength, true, s.prompts.GetTemperature(pt))
}

// fitText shortens text to what the context window can hold after
// reserving room for the prompt and response.
func (s *Service) fitText(text string) string {
	limit := s.opts.ContextWindow - s.opts.ContextWindow/8
	fitted, _ := window.Fit(text, limit, s)
	return fitted
}

func (s *Service) CountTokens(text string) int {
	return s.tokenCount(text)
}

// CountTokens tokenizes text with prose, falling back to whitespace
// splitting if the document cannot be built.
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	doc, err := prose.NewDocument(text)
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(doc.Tokens())
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// Embedder adapts the Ollama embed endpoint to embedding.Embedder.
type Embedder struct {
	client ollamaClient
	model  string
}

var _ embedding.Embedder = (*Embedder)(nil)

func newEmbedder(client ollamaClient, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (e *Embedder) Model() string { return e.model }
