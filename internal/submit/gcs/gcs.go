// Package gcs writes attestation payloads to a Cloud Storage bucket as
// create-only objects keyed by invoice number.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

const backendName = "gcs"

type Config struct {
	Bucket string
	Prefix string
}

// objectCreator writes an object only if it does not exist yet and returns its generation.
type objectCreator interface {
	CreateIfAbsent(ctx context.Context, name string, data []byte, meta map[string]string) (int64, error)
}

type Submitter struct {
	cfg     Config
	objects objectCreator
	logger  *slog.Logger
}

func NewSubmitter(client *storage.Client, cfg Config, logger *slog.Logger) *Submitter {
	return newSubmitter(&bucketCreator{bucket: client.Bucket(cfg.Bucket)}, cfg, logger)
}

func newSubmitter(objects objectCreator, cfg Config, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{cfg: cfg, objects: objects, logger: logger}
}

func (s *Submitter) Name() string { return backendName }

func (s *Submitter) objectName(recordID string) string {
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

	name := s.objectName(a.RecordID)
	gen, err := s.objects.CreateIfAbsent(ctx, name, payload, map[string]string{
		"invoice-number":   a.RecordID,
		"file-fingerprint": a.FileFingerprint.String(),
		"data-fingerprint": a.DataFingerprint.String(),
	})
	if err != nil {
		s.logger.Warn("submit.gcs.failed", "record_id", a.RecordID, "object", name, "error", err)
		return submit.Receipt{}, classify(err, name)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name)
	s.logger.Info("submit.gcs.saved", "record_id", a.RecordID, "uri", uri, "generation", gen)
	return submit.Receipt{
		ID:          fmt.Sprintf("%s#%d", uri, gen),
		Backend:     backendName,
		ExplorerURL: fmt.Sprintf("https://storage.cloud.google.com/%s/%s", s.cfg.Bucket, name),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func classify(err error, name string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusPreconditionFailed:
			return common.NewKindError(common.KindDuplicateRecord, "object "+name+" already exists", err)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return common.NewKindError(common.KindUserRejected, "storage access denied", err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return common.NewKindError(common.KindNetwork, "storage unavailable", err)
		}
		return common.NewKindError(common.KindUnknown, "storage write failed", err)
	}
	if kind := common.Classify(err); kind == common.KindNetwork {
		return common.NewKindError(kind, "storage write failed", err)
	}
	return common.NewKindError(common.KindUnknown, "storage write failed", err)
}

type bucketCreator struct {
	bucket *storage.BucketHandle
}

func (b *bucketCreator) CreateIfAbsent(ctx context.Context, name string, data []byte, meta map[string]string) (int64, error) {
	w := b.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = meta
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.Attrs().Generation, nil
}
