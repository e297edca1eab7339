package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(context.Background(), common.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func row(recordID string, at time.Time) *entity.Attestation {
	return &entity.Attestation{
		RecordID:        recordID,
		FileFingerprint: strings.Repeat("a", 64),
		DataFingerprint: strings.Repeat("b", 64),
		Backend:         "evm",
		ReceiptID:       "0x" + recordID,
		DocumentName:    recordID + ".pdf",
		MediaType:       "application/pdf",
		RecordJSON:      `{"invoice_number":"` + recordID + `"}`,
		CreatedAt:       at,
	}
}

func TestAppendAndGetByRecordID(t *testing.T) {
	ctx := context.Background()
	repo := NewAttestationRepository(openTestDB(t), nil)

	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	in := row("INV-1", at)
	require.NoError(t, repo.Append(ctx, in))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", in.ID.String())

	got, err := repo.GetByRecordID(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "0xINV-1", got.ReceiptID)
	assert.Equal(t, "application/pdf", got.MediaType)
	assert.True(t, at.Equal(got.CreatedAt), got.CreatedAt)

	_, err = repo.GetByRecordID(ctx, "INV-404")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAppendDuplicateRecordID(t *testing.T) {
	ctx := context.Background()
	repo := NewAttestationRepository(openTestDB(t), nil)

	require.NoError(t, repo.Append(ctx, row("INV-1", time.Now())))
	err := repo.Append(ctx, row("INV-1", time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateRecord)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListFiltersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewAttestationRepository(openTestDB(t), nil)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"INV-3", "INV-1", "INV-2"} {
		require.NoError(t, repo.Append(ctx, row(id, base.Add(time.Duration(i)*24*time.Hour))))
	}

	all, err := repo.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"INV-3", "INV-1", "INV-2"}, []string{all[0].RecordID, all[1].RecordID, all[2].RecordID})

	from := base.Add(12 * time.Hour)
	to := base.Add(36 * time.Hour)
	some, err := repo.List(ctx, &from, &to)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "INV-1", some[0].RecordID)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background(), time.Second))
	assert.Equal(t, "sqlite3", db.Dialect())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "mysql"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
