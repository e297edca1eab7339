package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

const getAttestationMethod = "/invoiceattest.v1.LedgerService/GetAttestation"

// LedgerServer answers attestation lookups by invoice number.
type LedgerServer interface {
	GetAttestation(ctx context.Context, recordID *wrapperspb.StringValue) (*structpb.Struct, error)
}

// LedgerServiceDesc is registered by hand; the messages are well-known types
// so no generated code is needed.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: "invoiceattest.v1.LedgerService",
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAttestation", Handler: getAttestationHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoiceattest/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func getAttestationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetAttestation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getAttestationMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetAttestation(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerClient calls LedgerService over an existing connection.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) GetAttestation(ctx context.Context, recordID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getAttestationMethod, wrapperspb.String(recordID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ledgerService struct {
	journal Journal
	logger  *slog.Logger
}

func NewLedgerService(journal Journal, logger *slog.Logger) LedgerServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerService{journal: journal, logger: logger}
}

func (s *ledgerService) GetAttestation(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	recordID := strings.TrimSpace(req.GetValue())
	if recordID == "" {
		return nil, common.InvalidArgumentError("record id is required")
	}
	a, err := s.journal.GetByRecordID(ctx, recordID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFoundError("no attestation for " + recordID)
		}
		s.logger.Error("grpc.ledger.get_failed", "record_id", recordID, "error", err)
		return nil, common.InternalError("lookup failed")
	}
	out, err := attestationStruct(a)
	if err != nil {
		s.logger.Error("grpc.ledger.encode_failed", "record_id", recordID, "error", err)
		return nil, common.InternalErrorf("encode attestation: %v", err)
	}
	return out, nil
}

func attestationStruct(a *entity.Attestation) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":               a.ID.String(),
		"record_id":        a.RecordID,
		"file_fingerprint": a.FileFingerprint,
		"data_fingerprint": a.DataFingerprint,
		"backend":          a.Backend,
		"receipt_id":       a.ReceiptID,
		"explorer_url":     a.ExplorerURL,
		"document_name":    a.DocumentName,
		"media_type":       a.MediaType,
		"created_at":       a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.RecordJSON != "" {
		var record map[string]any
		if err := json.Unmarshal([]byte(a.RecordJSON), &record); err != nil {
			return nil, err
		}
		fields["record"] = record
	}
	return structpb.NewStruct(fields)
}
