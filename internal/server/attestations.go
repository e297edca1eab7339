package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/export"
)

type listResponse struct {
	Items []*entity.Attestation `json:"items"`
}

func parseDateQuery(c *gin.Context, name string) (*time.Time, error) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, common.NewAppError("INVALID_ARGUMENT", fmt.Sprintf("invalid %s date %q", name, s), common.ErrInvalidInput)
	}
	return &t, nil
}

func dateWindow(c *gin.Context) (*time.Time, *time.Time, error) {
	from, err := parseDateQuery(c, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (s *HTTPServer) handleGetAttestation(c *gin.Context) {
	recordID := strings.TrimSpace(c.Param("record_id"))
	a, err := s.deps.Journal.GetByRecordID(c.Request.Context(), recordID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *HTTPServer) handleListAttestations(c *gin.Context) {
	from, to, err := dateWindow(c)
	if err != nil {
		writeError(c, err)
		return
	}
	fromDate, toDate := export.Window(from, to, time.Now())
	items, err := s.deps.Journal.List(c.Request.Context(), fromDate, toDate)
	if err != nil {
		s.deps.Logger.Error("http.attestations.list_failed", "req_id", common.RequestIDFromContext(c.Request.Context()), "error", err)
		writeError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Attestation{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items})
}

func (s *HTTPServer) handleExport(c *gin.Context) {
	from, to, err := dateWindow(c)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := s.deps.Exporter.ExportAttestationsXLSX(c.Request.Context(), from, to)
	if err != nil {
		s.deps.Logger.Error("http.export.failed", "req_id", common.RequestIDFromContext(c.Request.Context()), "error", err)
		writeError(c, err)
		return
	}
	filename := fmt.Sprintf("attestations-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
