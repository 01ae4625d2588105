// Package caption implements C3: prompting the multimodal model for a
// structured caption and requesting text embeddings. Grounded on the
// teacher's infrastructure/gemini/gemini_client.go (genai.Client wiring,
// multimodal Part construction) but generalized from news-article
// generation to the fixed caption/tags/embedding contract of spec §4.3.
package caption

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/config"
	"driveingest/internal/ratelimit"
)

// Result is the parsed output of captioning one image.
type Result struct {
	Caption string
	Tags    []string
}

// Adapter implements C3 against Gemini.
type Adapter struct {
	client    *genai.Client
	model     string
	vectorDim int
	limiter   *ratelimit.Limiter
}

func NewAdapter(ctx context.Context, cfg config.CaptionConfig, limiter *ratelimit.Limiter) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("caption API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create caption client: %w", err)
	}

	return &Adapter{
		client:    client,
		model:     cfg.Model,
		vectorDim: cfg.VectorDim,
		limiter:   limiter,
	}, nil
}

const captionPrompt = `Describe this image using exactly the following markdown sections, each as a level-3 heading followed by its content:

### Subjects
List the main subjects/people/objects, comma-separated.

### Actions
Describe what is happening.

### Setting
Describe the location/environment.

### Visual Attributes
Describe colors, lighting, composition.

### Visible Text
Transcribe any text visible in the image (OCR), or write "none".

### Notable Details
Anything else noteworthy.

### Search Keywords
A comma-separated list of keywords someone might search for to find this image.`

// Caption sends the image inline with the structured prompt and parses the
// response into a caption body plus a deduplicated, capped tag list.
func (a *Adapter) Caption(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(captionPrompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "captioning request failed", err)
	}

	text := result.Text()
	if text == "" {
		return nil, apperr.New(apperr.TransientUpstream, "empty response from captioning model", nil)
	}

	return parseCaptionResponse(text), nil
}

// Embed normalizes text (trim, lowercase, collapse whitespace) then
// requests an embedding vector. The request sets no output dimension: the
// vector has the model's default length, which is not checked against the
// configured dimension D.
// Normalization MUST match exactly between ingest and query paths.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	normalized := NormalizeText(text)

	contents := []*genai.Content{genai.NewContentFromParts(
		[]*genai.Part{genai.NewPartFromText(normalized)}, genai.RoleUser,
	)}

	resp, err := a.client.Models.EmbedContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "embedding request failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, apperr.New(apperr.ProcessingFailed, "embedding model returned an empty vector", nil)
	}

	return resp.Embeddings[0].Values, nil
}

// EmbedCaption concatenates caption and space-joined tags, then embeds.
func (a *Adapter) EmbedCaption(ctx context.Context, caption string, tags []string) ([]float32, error) {
	combined := caption + " " + strings.Join(tags, " ")
	return a.Embed(ctx, combined)
}

// NormalizeText is the single normalization function shared by ingest and
// query paths (spec §4.3): trim, lowercase, collapse internal whitespace.
func NormalizeText(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(fields, " ")
}
