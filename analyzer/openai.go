package analyzer

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

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
	maxResponseBytes   = 1 << 20
)

const systemPrompt = `You verify citizen emergency reports. Inspect the description and any images.
Answer with a single JSON object and nothing else, using exactly these keys:
{"is_emergency": bool, "confidence": number 0-1, "fraud_score": number 0-1,
 "emergency_level": "none"|"minor"|"moderate"|"severe"|"catastrophic",
 "priority": "LOW"|"MEDIUM"|"HIGH"|"CRITICAL",
 "observations": [string], "recommendations": [string]}`

// OpenAI calls an OpenAI-compatible chat completions endpoint
type OpenAI struct {
	url      string
	apiKey   string
	model    string
	client   *http.Client
	attempts uint
}

// NewOpenAI creates the chat completions adapter. The http client carries no
// timeout of its own; wrap the port with WithDeadline.
func NewOpenAI(url, apiKey, model string) *OpenAI {
	if url == "" {
		url = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		url:      url,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{},
		attempts: 2,
	}
}

// Name implements Port
func (o *OpenAI) Name() string { return "openai" }

// Version implements Port
func (o *OpenAI) Version() string { return "openai:" + o.model }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string or a list of contentPart for multimodal input
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Analyze implements Port
func (o *OpenAI) Analyze(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(o.buildRequest(req))
	if err != nil {
		return Result{}, &Failure{Kind: FailureUnavailable, Detail: "marshal request", Err: err}
	}

	var content string
	err = retry.Do(
		func() error {
			var callErr error
			content, callErr = o.call(ctx, body)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(250*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			f, ok := AsFailure(err)
			return ok && f.retryable && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			zap.S().Warnw("retrying analyzer call",
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}

	verdict, recovered, err := ParseVerdict(content)
	if err != nil {
		return Result{}, &Failure{
			Kind:   FailureUnavailable,
			Cause:  FailureMalformedResponse,
			Detail: "malformed_response",
			Err:    err,
		}
	}
	if recovered {
		zap.S().Infow("analyzer answer recovered by secondary parse", "provider", o.Name())
	}
	return Result{Verdict: verdict, Provider: o.Name(), Version: o.Version(), Raw: content}, nil
}

func (o *OpenAI) buildRequest(req Request) chatRequest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Declared disaster type: %s\n", req.DisasterType)
	if req.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", req.Location)
	}
	fmt.Fprintf(&sb, "Description: %s", req.Description)

	parts := []contentPart{{Type: "text", Text: sb.String()}}
	for _, uri := range req.ImageURIs {
		if Forwardable(uri) {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: uri}})
		}
	}

	return chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
}

func (o *OpenAI) call(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", &Failure{Kind: FailureUnavailable, Detail: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Failure{Kind: FailureTimeout, Err: err}
		}
		return "", &Failure{Kind: FailureUnavailable, Detail: "call provider", Err: err, retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", &Failure{Kind: FailureUnavailable, Detail: "read response", Err: err}
	}
	if len(respBody) > maxResponseBytes {
		return "", &Failure{Kind: FailureUnavailable, Cause: FailureMalformedResponse, Detail: "response exceeded limit"}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Failure{Kind: FailureQuotaExceeded, Detail: providerMessage(respBody)}
	case resp.StatusCode >= 500:
		return "", &Failure{Kind: FailureUnavailable, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, providerMessage(respBody)), retryable: true}
	case resp.StatusCode >= 400:
		return "", &Failure{Kind: FailureUnavailable, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, providerMessage(respBody))}
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil || len(cr.Choices) == 0 {
		// not a chat envelope; the body itself may still carry a verdict
		return string(respBody), nil
	}
	return cr.Choices[0].Message.Content, nil
}

func providerMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
