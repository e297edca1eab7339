package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

const (
	tableAttestations = "attestations"
	// fixed width so text timestamps order lexically
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var attestationColumns = []string{
	"id", "record_id", "file_fingerprint", "data_fingerprint", "backend", "receipt_id",
	"explorer_url", "document_name", "media_type", "record_json", "created_at",
}

type AttestationRepository interface {
	Append(ctx context.Context, a *entity.Attestation) error
	GetByRecordID(ctx context.Context, recordID string) (*entity.Attestation, error)
	List(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Attestation, error)
	Count(ctx context.Context) (int, error)
}

type attestationRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAttestationRepository(db *DB, logger *slog.Logger) AttestationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &attestationRepository{db: db, logger: logger}
}

func (r *attestationRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.dialect)
}

func (r *attestationRepository) timeArg(t time.Time) any {
	t = t.UTC()
	if r.db.dialect == dialect.Postgres {
		return t
	}
	return t.Format(sqliteTimeLayout)
}

func (r *attestationRepository) Append(ctx context.Context, a *entity.Attestation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query, args := r.builder().Insert(tableAttestations).
		Columns(attestationColumns...).
		Values(
			a.ID.String(), a.RecordID, a.FileFingerprint, a.DataFingerprint, a.Backend, a.ReceiptID,
			a.ExplorerURL, a.DocumentName, a.MediaType, a.RecordJSON, r.timeArg(a.CreatedAt),
		).
		Query()

	if err := r.db.Driver.Exec(ctx, query, args, nil); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return common.NewKindError(common.KindDuplicateRecord, "record "+a.RecordID+" already journaled", err)
		}
		r.logger.Error("failed to append attestation", "record_id", a.RecordID, "error", err)
		return fmt.Errorf("%w: append attestation: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("attestation journaled", "record_id", a.RecordID, "receipt_id", a.ReceiptID)
	return nil
}

func (r *attestationRepository) GetByRecordID(ctx context.Context, recordID string) (*entity.Attestation, error) {
	sel := r.builder().Select(attestationColumns...).
		From(entsql.Table(tableAttestations)).
		Where(entsql.EQ("record_id", recordID)).
		Limit(1)
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "no attestation for record "+recordID, common.ErrNotFound)
	}
	return rows[0], nil
}

// List returns attestations created within [fromDate, toDate], oldest first.
// Nil bounds are open.
func (r *attestationRepository) List(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Attestation, error) {
	sel := r.builder().Select(attestationColumns...).From(entsql.Table(tableAttestations))
	if fromDate != nil {
		sel.Where(entsql.GTE("created_at", r.timeArg(*fromDate)))
	}
	if toDate != nil {
		sel.Where(entsql.LTE("created_at", r.timeArg(*toDate)))
	}
	sel.OrderBy("created_at", "record_id")
	return r.query(ctx, sel)
}

func (r *attestationRepository) Count(ctx context.Context) (int, error) {
	query, args := r.builder().Select(entsql.Count("*")).From(entsql.Table(tableAttestations)).Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("%w: count attestations: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	n, err := entsql.ScanInt(rows)
	if err != nil {
		return 0, fmt.Errorf("%w: count attestations: %w", common.ErrDatabase, err)
	}
	return n, nil
}

func (r *attestationRepository) query(ctx context.Context, sel *entsql.Selector) ([]*entity.Attestation, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query attestations", "error", err)
		return nil, fmt.Errorf("%w: query attestations: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.Attestation
	for rows.Next() {
		var (
			a         entity.Attestation
			id        string
			createdAt scanTime
		)
		if err := rows.Scan(
			&id, &a.RecordID, &a.FileFingerprint, &a.DataFingerprint, &a.Backend, &a.ReceiptID,
			&a.ExplorerURL, &a.DocumentName, &a.MediaType, &a.RecordJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan attestation: %w", common.ErrDatabase, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: attestation id %q: %w", common.ErrDatabase, id, err)
		}
		a.ID = parsed
		a.CreatedAt = createdAt.Time
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate attestations: %w", common.ErrDatabase, err)
	}
	return out, nil
}

// scanTime accepts the native timestamp of Postgres and the text form stored in SQLite.
type scanTime struct {
	Time time.Time
}

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.Time = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		s.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (s *scanTime) parse(v string) error {
	t, err := time.Parse(sqliteTimeLayout, v)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return err
		}
	}
	s.Time = t.UTC()
	return nil
}
