package magicrows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/genai"
)

// geminiHandler implements ProviderHandler over the Google GenAI client.
type geminiHandler struct {
	responseParser
	client *genai.Client
	log    *slog.Logger
}

func newGeminiHandler(ctx context.Context, p Profile, log *slog.Logger) (*geminiHandler, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, fmt.Errorf("profile %q: API key is required", p.Name)
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(p.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(p.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(p.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("profile %q: init gemini client: %w", p.Name, err)
	}
	return &geminiHandler{
		responseParser: responseParser{log: log},
		client:         client,
		log:            log,
	}, nil
}

func (h *geminiHandler) Complete(ctx context.Context, req CompletionRequest) (*RawResponse, error) {
	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:    &temp,
		CandidateCount: 1,
	}
	if req.Contract != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.Contract.genaiSchema()
	}

	resp, err := h.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}

	raw := &RawResponse{Text: text}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		raw.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		raw.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		raw.HasUsage = true
	}
	return raw, nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &ResponseError{Err: ErrEmptyResponse}
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", &ResponseError{Err: ErrEmptyResponse}
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &ResponseError{Err: ErrEmptyResponse}
	}
	return sb.String(), nil
}

// classifyGeminiErr maps API failures onto the retry taxonomy: 429 and
// 5xx are transient, other API codes are request errors.
func classifyGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &TransientError{Err: err}
		}
		return &RequestError{Err: err}
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
