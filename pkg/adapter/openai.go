package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient serves completion and embedding through the OpenAI API
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIChatModel(name string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.chatModel = name
	}
}

func WithOpenAIEmbeddingModel(name string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.embeddingModel = name
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	c := &OpenAIClient{
		client:         &client,
		chatModel:      string(openai.ChatModelGPT4oMini),
		embeddingModel: string(openai.EmbeddingModelTextEmbedding3Small),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Complete(ctx context.Context, system string, messages []model.Message) (string, error) {
	var params openai.ChatCompletionNewParams
	params.Model = openai.ChatModel(c.chatModel)

	if system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(system))
	}
	for _, msg := range messages {
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Text))
		} else {
			params.Messages = append(params.Messages, openai.UserMessage(msg.Text))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call openai chat",
			goerr.V("model", c.chatModel),
			goerr.T(model.ErrTagProvider))
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("no choices returned",
			goerr.V("model", c.chatModel),
			goerr.T(model.ErrTagProvider))
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed ignores mode: OpenAI embedding models are symmetric
func (c *OpenAIClient) Embed(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call openai embeddings",
			goerr.V("model", c.embeddingModel),
			goerr.T(model.ErrTagProvider))
	}
	if len(resp.Data) == 0 {
		return nil, goerr.New("empty embedding response",
			goerr.V("model", c.embeddingModel),
			goerr.T(model.ErrTagProvider))
	}

	values := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		values[i] = float32(v)
	}
	return normalize(values), nil
}
