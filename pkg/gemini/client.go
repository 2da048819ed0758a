// Package gemini wraps google.golang.org/genai for single-turn,
// search-grounded generation.
package gemini

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/reengage-cli/internal/resilience"
)

const defaultModel = "gemini-2.5-pro"

// Client generates content from a single prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is one generateContent call.
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       *float32
	GoogleSearch      bool
}

// Response is the flattened generateContent result.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Sources      []string
}

// Config configures the client.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL.
	BaseURL string

	// Retry applies to each generateContent call. Zero means one attempt.
	Retry resilience.RetryConfig
}

type sdkClient struct {
	models *genai.Models
	model  string
	retry  resilience.RetryConfig
}

// New creates a Gemini API client.
func New(ctx context.Context, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("gemini", "generate_content")
	}
	return &sdkClient{models: client.Models, model: model, retry: retry}, nil
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	gc := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    req.Temperature,
	}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	if req.GoogleSearch {
		gc.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		r, err := c.models.GenerateContent(ctx, model, genai.Text(req.Prompt), gc)
		if err != nil {
			return nil, classifyErr(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &Response{
		Text:    resp.Text(),
		Model:   model,
		Sources: extractSources(resp),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTP(err, apiErr.Code)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return resilience.NewTransientError(err, 0)
	}
	return err
}

// extractSources returns the grounding web URIs of the first candidate.
func extractSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}
