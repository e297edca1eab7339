package s3store

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

type memStore struct {
	objects map[string][]byte
	statErr error
	putErr  error
	puts    int
}

func (m *memStore) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if m.statErr != nil {
		return minio.ObjectInfo{}, m.statErr
	}
	if _, ok := m.objects[key]; ok {
		return minio.ObjectInfo{Key: key}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

func (m *memStore) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.puts++
	if m.putErr != nil {
		return minio.UploadInfo{}, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.objects[key] = data
	return minio.UploadInfo{Key: key, ETag: "etag1"}, nil
}

func attestation(id string) submit.Attestation {
	return submit.Attestation{RecordID: id, FileFingerprint: "aa", DataFingerprint: "bb"}
}

func TestSubmitPutsObject(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	s := NewSubmitter(store, Config{Bucket: "ledger", Prefix: "attestations"}, nil)

	r, err := s.Submit(context.Background(), attestation("INV-9"))
	require.NoError(t, err)
	assert.Equal(t, "s3://ledger/attestations/INV-9.json#etag1", r.ID)
	assert.Equal(t, "s3", r.Backend)
	assert.Contains(t, string(store.objects["attestations/INV-9.json"]), `"invoiceNumber":"INV-9"`)

	_, err = s.Submit(context.Background(), attestation("INV-9"))
	assert.ErrorIs(t, err, common.ErrDuplicateRecord)
	assert.Equal(t, 1, store.puts)
}

func TestSubmitErrorMapping(t *testing.T) {
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	busy := minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}

	store := &memStore{objects: map[string][]byte{}, statErr: denied}
	_, err := NewSubmitter(store, Config{Bucket: "b"}, nil).Submit(context.Background(), attestation("A"))
	assert.Equal(t, common.KindUserRejected, common.Classify(err))
	assert.Zero(t, store.puts)

	store = &memStore{objects: map[string][]byte{}, putErr: busy}
	_, err = NewSubmitter(store, Config{Bucket: "b"}, nil).Submit(context.Background(), attestation("A"))
	assert.Equal(t, common.KindNetwork, common.Classify(err))

	store = &memStore{objects: map[string][]byte{}, putErr: minio.ErrorResponse{Code: "InvalidArgument", StatusCode: http.StatusBadRequest}}
	_, err = NewSubmitter(store, Config{Bucket: "b"}, nil).Submit(context.Background(), attestation("A"))
	assert.Equal(t, common.KindUnknown, common.Classify(err))
}

func TestSubmitRejectsIncompleteTriple(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	_, err := NewSubmitter(store, Config{Bucket: "b"}, nil).Submit(context.Background(), submit.Attestation{RecordID: "A"})
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Zero(t, store.puts)
}
