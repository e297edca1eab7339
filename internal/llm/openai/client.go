package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/httpx"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
)

// Generate implements llm.VisionModel with one chat/completions call. Images
// travel as data URLs, PDFs as an inline file part.
func (c *Client) Generate(ctx context.Context, req llm.VisionRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.openai.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"media_type", req.Document.MediaType,
		"bytes", req.Document.Size(),
	)

	system := req.System
	if len(req.Schema) > 0 {
		system += "\n\nJSON Schema:\n" + mustJSON(req.Schema)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": req.Prompt},
				documentPart(req),
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, err := httpx.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.openai.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", classifyHTTPError(err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.openai.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return "", common.NewKindError(common.KindMalformedResponse, "decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.openai.no_choices", "req_id", rid, "raw", string(raw))
		return "", common.NewKindError(common.KindMalformedResponse, "no choices in openai response", nil)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.openai.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func documentPart(req llm.VisionRequest) map[string]any {
	if req.Document.IsPDF() {
		name := req.Document.Name
		if name == "" {
			name = "invoice.pdf"
		}
		return map[string]any{
			"type": "file",
			"file": map[string]any{"filename": name, "file_data": req.Document.DataURL()},
		}
	}
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": req.Document.DataURL()},
	}
}

// classifyHTTPError maps transport and status failures onto the taxonomy.
func classifyHTTPError(err error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return common.NewKindError(common.KindNetwork, "openai request failed", err)
	}
	switch {
	case se.Code == http.StatusTooManyRequests && bytes.Contains(se.Body, []byte("insufficient_quota")):
		return common.NewKindError(common.KindInsufficientResources, "openai quota exhausted", err)
	case se.Code == http.StatusTooManyRequests || se.Code >= 500:
		return common.NewKindError(common.KindNetwork, fmt.Sprintf("openai status %d", se.Code), err)
	default:
		return common.NewKindError(common.KindUnknown, fmt.Sprintf("openai status %d: %s", se.Code, truncate(string(se.Body), 200)), err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
