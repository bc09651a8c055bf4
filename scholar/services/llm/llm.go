package llm

import (
	"context"
	"errors"
	"io"

	"scholar/scholar/config"
	"scholar/scholar/utils/logging"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages  []Message
	MaxTokens int
}

// Delta is one piece of a streamed completion. A Delta with Err set is the
// last value on the channel.
type Delta struct {
	Text string
	Err  error
}

// Client produces chat completions.
type Client interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
	RunStream(ctx context.Context, req ChatRequest) (<-chan Delta, error)
}

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New returns the OpenAI-backed client and embedder. Without an API key the
// client is nil and embeddings come from the local hashing embedder.
func New(cfg config.OpenAIConfig) (Client, Embedder) {
	if cfg.APIKey == "" {
		return nil, NewHashEmbedder(DefaultHashDims)
	}
	c := NewOpenAIClient(cfg)
	return c, c
}

type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	maxTokens      int
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
	}
}

func (c *OpenAIClient) request(req ChatRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		Stream:      stream,
	}
}

func (c *OpenAIClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "llm_run")()
	resp, err := c.client.CreateChatCompletion(ctx, c.request(req, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Delta, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan Delta)
	go func() {
		defer close(ch)
		defer stream.Close()
		defer logging.LogDuration(ctx, "llm_run_stream")()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				logging.ErrorLogger.Error("llm stream error", zap.Error(err))
				select {
				case ch <- Delta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- Delta{Text: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	defer logging.LogDuration(ctx, "llm_embed")()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.New("embedding index out of range")
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
