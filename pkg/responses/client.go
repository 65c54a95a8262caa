package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// InputMessage is one entry of the request "input" array.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TextFormat struct {
	Type string `json:"type"`
}

type TextOptions struct {
	Format TextFormat `json:"format"`
}

// CreateRequest is the body of POST /responses.
type CreateRequest struct {
	Model           string         `json:"model"`
	Instructions    string         `json:"instructions,omitempty"`
	Input           []InputMessage `json:"input"`
	Text            TextOptions    `json:"text"`
	Stream          bool           `json:"stream"`
	MaxOutputTokens int            `json:"max_output_tokens"`
}

// NewTextRequest builds a single-user-message request with a plain text output format.
func NewTextRequest(model, instructions, userContent string, maxOutputTokens int, stream bool) *CreateRequest {
	return &CreateRequest{
		Model:        model,
		Instructions: instructions,
		Input: []InputMessage{
			{Role: "user", Content: userContent},
		},
		Text:            TextOptions{Format: TextFormat{Type: "text"}},
		Stream:          stream,
		MaxOutputTokens: maxOutputTokens,
	}
}

// Response is an accepted upstream reply. The caller owns Body.
type Response struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// EventStream reports whether the body is a server-sent-event stream.
func (r *Response) EventStream() bool {
	return r != nil && strings.Contains(strings.ToLower(r.ContentType), "text/event-stream")
}

// Client issues generation calls. The context is the request's cancellation token.
type Client interface {
	Create(ctx context.Context, apiKey string, req *CreateRequest) (*Response, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = &HTTPClient{}

type HTTPClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// NewHTTPClient returns a client for baseURL (DefaultBaseURL when empty). The
// default http.Client has no overall timeout since streams are long-lived.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	h := &HTTPClient{baseURL: baseURL, client: &http.Client{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPClient) Create(ctx context.Context, apiKey string, req *CreateRequest) (*Response, error) {
	if h == nil {
		return nil, errors.New("responses client is nil")
	}
	if req == nil {
		return nil, errors.New("request is nil")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, raw)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

// statusError prefers the API's error.message, then the raw body, then the status text.
func statusError(code int, raw []byte) error {
	msg := ""
	var parsed struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		msg = parsed.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return errors.Errorf("OpenAI error %d: %s", code, msg)
}
