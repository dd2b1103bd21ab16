package magicrows

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// systemInstruction frames every OpenAI call; the per-output prompt goes
// in the user message.
const systemInstruction = "You are a data analysis expert skilled in information extraction. " +
	"Extract structured information from the provided data according to the requested format. " +
	"When reasoning is requested, provide a thoughtful explanation for your conclusion. " +
	"When a JSON schema is provided, format your response exactly according to it."

// openaiHandler implements ProviderHandler over the OpenAI chat API.
type openaiHandler struct {
	responseParser
	client openai.Client
	log    *slog.Logger
}

func newOpenAIHandler(p Profile, log *slog.Logger) *openaiHandler {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(p.APIKey))}
	if strings.TrimSpace(p.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(p.BaseURL)))
	}
	return &openaiHandler{
		responseParser: responseParser{log: log},
		client:         openai.NewClient(opts...),
		log:            log,
	}
}

func (h *openaiHandler) Complete(ctx context.Context, req CompletionRequest) (*RawResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.Contract != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Contract.Name,
					Schema: req.Contract.jsonSchema(),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := h.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ResponseError{Err: ErrEmptyResponse}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		h.log.Warn("completion truncated by the provider's token limit", "model", req.Model)
	}
	if choice.Message.Content == "" {
		return nil, &ResponseError{Err: ErrEmptyResponse}
	}

	raw := &RawResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		raw.Usage = Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
		raw.HasUsage = true
	}
	return raw, nil
}

// classifyOpenAIErr maps API failures onto the retry taxonomy: 429,
// 408, and 5xx are transient, other API statuses are request errors.
func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode == 408 || apiErr.StatusCode/100 == 5:
			return &TransientError{Err: err}
		default:
			return &RequestError{Err: err}
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
