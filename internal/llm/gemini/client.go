// Package gemini is the Vertex AI Gemini backend of llm.VisionModel.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
)

type Config struct {
	ProjectID   string
	Region      string
	Model       string // e.g., "gemini-1.5-flash"
	Temperature float32
}

// generator is the slice of *genai.GenerativeModel this package calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg      Config
	base     *genai.Client
	newModel func(system string) generator
	logger   *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	c := &Client{cfg: cfg, base: base, logger: logger}
	c.newModel = c.model
	return c, nil
}

// model builds a per-call handle; GenerativeModel settings are not safe to mutate concurrently.
func (c *Client) model(system string) generator {
	m := c.base.GenerativeModel(c.cfg.Model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](c.cfg.Temperature),
	}
	return m
}

func (c *Client) Close() error {
	if c.base == nil {
		return nil
	}
	return c.base.Close()
}

func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Generate implements llm.VisionModel: the document goes inline as a blob
// followed by the text prompt.
func (c *Client) Generate(ctx context.Context, req llm.VisionRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.gemini.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"media_type", req.Document.MediaType,
		"bytes", req.Document.Size(),
	)

	blob := genai.Blob{MIMEType: req.Document.MediaType, Data: req.Document.Bytes()}
	resp, err := c.newModel(req.System).GenerateContent(ctx, blob, genai.Text(req.Prompt))
	if err != nil {
		c.logger.Error("llm.gemini.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", classify(err)
	}

	text := responseText(resp)
	if text == "" {
		c.logger.Error("llm.gemini.empty_response", "req_id", rid)
		return "", common.NewKindError(common.KindMalformedResponse, "gemini returned no text", nil)
	}
	c.logger.Info("llm.gemini.ok",
		"req_id", rid,
		"content_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return common.NewKindError(common.KindInsufficientResources, "vertex quota exhausted", err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return common.NewKindError(common.KindNetwork, "vertex unavailable", err)
	default:
		if common.Classify(err) == common.KindNetwork {
			return common.NewKindError(common.KindNetwork, "vertex request failed", err)
		}
		return common.NewKindError(common.KindUnknown, "vertex request failed", err)
	}
}
