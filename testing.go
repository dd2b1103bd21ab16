package magicrows

import (
	"context"
	"log/slog"
	"sync"
)

// StubHandler is a scriptable ProviderHandler for tests. Replies are
// consumed in FIFO order per output name; parsing goes through the same
// decode path as the real providers.
type StubHandler struct {
	responseParser

	mu      sync.Mutex
	replies map[string][]StubReply
	calls   []CompletionRequest
}

// StubReply is one scripted completion outcome.
type StubReply struct {
	Text  string
	Usage Usage
	Err   error
}

// NewStubHandler builds an empty stub. Script it with Reply before use.
func NewStubHandler() *StubHandler {
	return &StubHandler{
		responseParser: responseParser{log: slog.Default()},
		replies:        make(map[string][]StubReply),
	}
}

// Reply queues replies for the contract (output) named in incoming
// requests. Requests without a contract consume from the "" queue.
func (h *StubHandler) Reply(output string, replies ...StubReply) *StubHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies[output] = append(h.replies[output], replies...)
	return h
}

func (h *StubHandler) Complete(_ context.Context, req CompletionRequest) (*RawResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, req)

	key := ""
	if req.Contract != nil {
		key = req.Contract.Name
	}
	queue := h.replies[key]
	if len(queue) == 0 {
		return nil, &ResponseError{Err: ErrEmptyResponse}
	}
	reply := queue[0]
	h.replies[key] = queue[1:]

	if reply.Err != nil {
		return nil, reply.Err
	}
	raw := &RawResponse{Text: reply.Text}
	if reply.Usage != (Usage{}) {
		raw.Usage = reply.Usage
		raw.HasUsage = true
	}
	return raw, nil
}

// Calls returns every request seen so far.
func (h *StubHandler) Calls() []CompletionRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CompletionRequest(nil), h.calls...)
}
