// Package pinata pins the attestation payload to IPFS through Pinata's
// pinFileToIPFS endpoint; the CID is the receipt.
package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/httpx"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

const backendName = "pinata"

type Config struct {
	JWT        string
	BaseURL    string // default https://api.pinata.cloud
	GatewayURL string // default https://gateway.pinata.cloud/ipfs/
	Timeout    time.Duration
}

type Submitter struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewSubmitter(cfg Config, logger *slog.Logger) *Submitter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pinata.cloud"
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "https://gateway.pinata.cloud/ipfs/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (s *Submitter) Name() string { return backendName }

type pinResponse struct {
	IpfsHash    string `json:"IpfsHash"`
	PinSize     int64  `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate"`
}

func (s *Submitter) Submit(ctx context.Context, a submit.Attestation) (submit.Receipt, error) {
	if err := a.Validate(); err != nil {
		return submit.Receipt{}, err
	}
	payload, err := a.Payload()
	if err != nil {
		return submit.Receipt{}, err
	}

	body, contentType, err := multipartBody(a, payload)
	if err != nil {
		return submit.Receipt{}, common.NewKindError(common.KindEncoding, "build pin request", err)
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/pinning/pinFileToIPFS"
	headers := map[string]string{
		"Authorization": "Bearer " + s.cfg.JWT,
		"Content-Type":  contentType,
	}
	raw, _, err := httpx.Send(ctx, s.http, http.MethodPost, url, body, headers, s.logger)
	if err != nil {
		s.logger.Warn("submit.pinata.failed", "record_id", a.RecordID, "error", err)
		return submit.Receipt{}, classify(err)
	}

	var pr pinResponse
	if err := json.Unmarshal(raw, &pr); err != nil || pr.IpfsHash == "" {
		return submit.Receipt{}, common.NewKindError(common.KindUnknown, "pinata response carried no IpfsHash", err)
	}
	if pr.IsDuplicate {
		s.logger.Warn("submit.pinata.duplicate", "record_id", a.RecordID, "cid", pr.IpfsHash)
		return submit.Receipt{}, common.NewKindError(common.KindDuplicateRecord, "attestation already pinned as "+pr.IpfsHash, nil)
	}

	s.logger.Info("submit.pinata.pinned", "record_id", a.RecordID, "cid", pr.IpfsHash, "size", pr.PinSize)
	return submit.Receipt{
		ID:          pr.IpfsHash,
		Backend:     backendName,
		ExplorerURL: strings.TrimRight(s.cfg.GatewayURL, "/") + "/" + pr.IpfsHash,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func multipartBody(a submit.Attestation, payload []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fw, err := mw.CreateFormFile("file", "attestation-"+fileSafe(a.RecordID)+".json")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, "", err
	}

	meta, err := json.Marshal(map[string]any{
		"name": "invoice-attestation-" + a.RecordID,
		"keyvalues": map[string]string{
			"invoiceNumber":   a.RecordID,
			"fileFingerprint": a.FileFingerprint.Prefixed(),
			"dataFingerprint": a.DataFingerprint.Prefixed(),
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}

func classify(err error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return common.NewKindError(common.KindNetwork, "pinata request failed", err)
	}
	msg := fmt.Sprintf("pinata status %d", se.Code)
	switch {
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
		return common.NewKindError(common.KindUserRejected, "pinata rejected the credentials", err)
	case se.Code == http.StatusPaymentRequired:
		return common.NewKindError(common.KindInsufficientResources, "pinata plan limit reached", err)
	case se.Code == http.StatusTooManyRequests:
		if bytes.Contains(bytes.ToLower(se.Body), []byte("limit")) && bytes.Contains(bytes.ToLower(se.Body), []byte("plan")) {
			return common.NewKindError(common.KindInsufficientResources, "pinata plan limit reached", err)
		}
		return common.NewKindError(common.KindNetwork, msg, err)
	case se.Code >= 500:
		return common.NewKindError(common.KindNetwork, msg, err)
	default:
		return common.NewKindError(common.KindUnknown, msg, err)
	}
}
