// Package s3store writes attestation payloads to an S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

const backendName = "s3"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the submitter needs.
type objectStore interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Submitter struct {
	cfg    Config
	store  objectStore
	logger *slog.Logger
}

// NewClient builds a minio client from cfg.
func NewClient(cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}

func NewSubmitter(store objectStore, cfg Config, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{cfg: cfg, store: store, logger: logger}
}

func (s *Submitter) Name() string { return backendName }

func (s *Submitter) key(recordID string) string {
	return path.Join(s.cfg.Prefix, recordID+".json")
}

func (s *Submitter) Submit(ctx context.Context, a submit.Attestation) (submit.Receipt, error) {
	if err := a.Validate(); err != nil {
		return submit.Receipt{}, err
	}
	payload, err := a.Payload()
	if err != nil {
		return submit.Receipt{}, err
	}

	key := s.key(a.RecordID)
	_, err = s.store.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return submit.Receipt{}, common.NewKindError(common.KindDuplicateRecord, "object "+key+" already exists", nil)
	case !isNotFound(err):
		s.logger.Warn("submit.s3.stat_failed", "record_id", a.RecordID, "key", key, "error", err)
		return submit.Receipt{}, classify(err)
	}

	info, err := s.store.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"invoice-number":   a.RecordID,
			"file-fingerprint": a.FileFingerprint.String(),
			"data-fingerprint": a.DataFingerprint.String(),
		},
	})
	if err != nil {
		s.logger.Warn("submit.s3.put_failed", "record_id", a.RecordID, "key", key, "error", err)
		return submit.Receipt{}, classify(err)
	}

	id := fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
	if info.ETag != "" {
		id += "#" + info.ETag
	}
	s.logger.Info("submit.s3.saved", "record_id", a.RecordID, "receipt_id", id)
	return submit.Receipt{ID: id, Backend: backendName, SubmittedAt: time.Now().UTC()}, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return common.NewKindError(common.KindUserRejected, "object store access denied", err)
	case resp.Code == "QuotaExceeded" || resp.Code == "EntityTooLarge":
		return common.NewKindError(common.KindInsufficientResources, "object store quota exceeded", err)
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return common.NewKindError(common.KindNetwork, "object store unavailable", err)
	case resp.StatusCode == 0 && common.Classify(err) == common.KindNetwork:
		return common.NewKindError(common.KindNetwork, "object store unreachable", err)
	}
	return common.NewKindError(common.KindUnknown, "object store write failed", err)
}
