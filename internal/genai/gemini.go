package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campaignforge/forge/internal/validation"
	"github.com/campaignforge/forge/pkg/schema"
)

const (
	defaultBaseURL         = "https://generativelanguage.googleapis.com"
	defaultTextModel       = "gemini-3-flash-preview"
	defaultImageModel      = "gemini-2.5-flash-image"
	defaultVideoModel      = "veo-3.1-fast-generate-preview"
	defaultCallTimeout     = 2 * time.Minute
	defaultMaxResponseBody = 64 * 1024 * 1024 // synthesized media is large

	apiKeyHeader = "x-goog-api-key"
)

// GeminiConfig configures the Gemini REST client.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	TextModel       string
	ImageModel      string
	VideoModel      string
	CallTimeout     time.Duration // per-call deadline, independent of retries
	MaxResponseBody int64
	HTTPClient      *http.Client
}

// Gemini is the HTTP implementation of Service against the Gemini API.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGemini creates a Gemini client, applying defaults for unset fields.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "gemini: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = defaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = defaultVideoModel
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

// --- wire types ---

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type generateRequest struct {
	Contents         []wireContent  `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
}

func encodeParts(parts []Part) wireContent {
	wc := wireContent{Parts: make([]wirePart, 0, len(parts))}
	for _, p := range parts {
		if p.Blob != nil {
			wc.Parts = append(wc.Parts, wirePart{InlineData: &wireInlineData{
				MimeType: p.Blob.MIME,
				Data:     base64.StdEncoding.EncodeToString(p.Blob.Data),
			}})
			continue
		}
		wc.Parts = append(wc.Parts, wirePart{Text: p.Text})
	}
	return wc
}

// --- Service implementation ---

func (g *Gemini) PlanConcepts(ctx context.Context, parts []Part) ([]schema.Concept, error) {
	req := generateRequest{
		Contents:         []wireContent{encodeParts(parts)},
		GenerationConfig: map[string]any{"responseMimeType": "application/json"},
	}

	var resp generateResponse
	if err := g.post(ctx, g.modelURL(g.cfg.TextModel, "generateContent"), req, &resp); err != nil {
		return nil, err
	}

	raw := []byte(firstText(&resp))
	if err := validation.ValidateConceptJSON(raw); err != nil {
		return nil, err
	}
	var concepts []schema.Concept
	if err := json.Unmarshal(raw, &concepts); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePlanning, "decode concepts: %s", err.Error()).WithCause(err)
	}
	return concepts, nil
}

func (g *Gemini) SynthesizeImage(ctx context.Context, parts []Part) (*schema.Blob, error) {
	req := generateRequest{
		Contents: []wireContent{encodeParts(parts)},
		GenerationConfig: map[string]any{
			"imageConfig": map[string]any{
				"aspectRatio": "3:4",
				"imageSize":   "1K",
			},
		},
	}

	var resp generateResponse
	if err := g.post(ctx, g.modelURL(g.cfg.ImageModel, "generateContent"), req, &resp); err != nil {
		return nil, err
	}

	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeSynthesis, "decode image payload: %s", err.Error()).WithCause(err)
			}
			mime := p.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return &schema.Blob{Data: data, MIME: mime}, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeSynthesis, "response contained no image part")
}

func (g *Gemini) GenerateText(ctx context.Context, parts []Part) (string, error) {
	req := generateRequest{Contents: []wireContent{encodeParts(parts)}}

	var resp generateResponse
	if err := g.post(ctx, g.modelURL(g.cfg.TextModel, "generateContent"), req, &resp); err != nil {
		return "", err
	}
	text := firstText(&resp)
	if text == "" {
		return "", schema.NewError(schema.ErrCodeTransport, "response contained no text part")
	}
	return text, nil
}

type videoSeed struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoInstance struct {
	Prompt string     `json:"prompt"`
	Image  *videoSeed `json:"image,omitempty"`
}

type videoJobRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters map[string]any  `json:"parameters"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

func (g *Gemini) StartVideoJob(ctx context.Context, prompt string, seed *schema.Blob) (JobHandle, error) {
	inst := videoInstance{Prompt: prompt}
	if seed != nil {
		inst.Image = &videoSeed{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(seed.Data),
			MimeType:           seed.MIME,
		}
	}
	req := videoJobRequest{
		Instances: []videoInstance{inst},
		Parameters: map[string]any{
			"numberOfVideos": 1,
			"resolution":     "720p",
			"aspectRatio":    "16:9",
		},
	}

	var resp operationResponse
	if err := g.post(ctx, g.modelURL(g.cfg.VideoModel, "predictLongRunning"), req, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", schema.NewError(schema.ErrCodeAnimation, "no job handle returned")
	}
	return JobHandle(resp.Name), nil
}

func (g *Gemini) PollVideoJob(ctx context.Context, handle JobHandle) (*JobStatus, error) {
	url := fmt.Sprintf("%s/v1beta/%s", g.cfg.BaseURL, string(handle))

	var resp operationResponse
	if err := g.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	status := &JobStatus{Done: resp.Done}
	if samples := resp.Response.GenerateVideoResponse.GeneratedSamples; len(samples) > 0 {
		status.ResultURI = samples[0].Video.URI
	}
	return status, nil
}

func (g *Gemini) FetchVideo(ctx context.Context, uri string) (*schema.Blob, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "build fetch request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set(apiKeyHeader, g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "fetch video: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, transportStatusError("fetch video", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "read video body: %s", err.Error()).WithCause(err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return &schema.Blob{Data: data, MIME: mime}, nil
}

// --- HTTP plumbing ---

func (g *Gemini) modelURL(model, verb string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", g.cfg.BaseURL, model, verb)
}

func (g *Gemini) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "encode request: %s", err.Error()).WithCause(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, g.cfg.APIKey)

	return g.do(req, out)
}

func (g *Gemini) get(ctx context.Context, url string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set(apiKeyHeader, g.cfg.APIKey)

	return g.do(req, out)
}

func (g *Gemini) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "%s %s: %s", req.Method, req.URL.Path, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxResponseBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "read response: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return transportStatusError(req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "decode response: %s", err.Error()).WithCause(err)
	}
	return nil
}

func transportStatusError(op string, status int) *schema.ForgeError {
	return schema.NewErrorf(schema.ErrCodeTransport, "%s: service returned %d", op, status).
		WithDetails(map[string]any{"status_code": status})
}

func firstText(resp *generateResponse) string {
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}
