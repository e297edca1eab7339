package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/workflow"
)

type sessionHandler func(c *gin.Context, w *workflow.Workflow)

func (s *HTTPServer) withSession(h sessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		w, err := s.deps.Sessions.Get(id)
		if err != nil {
			writeError(c, err)
			return
		}
		h(c, w)
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	value := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(value)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// detached keeps request values but not cancellation: adapter calls run to
// completion even if the client goes away.
func detached(c *gin.Context) context.Context {
	ctx := context.WithoutCancel(c.Request.Context())
	return common.WithWorkflowID(ctx, c.Param("id"))
}

// uploadedDocument reads the multipart "file" field. ok is false without a
// response written when the field is absent.
func (s *HTTPServer) uploadedDocument(c *gin.Context) (entity.SourceDocument, bool, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return entity.SourceDocument{}, false, nil
		}
		return entity.SourceDocument{}, false, common.NewAppError("INVALID_UPLOAD", err.Error(), common.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return entity.SourceDocument{}, false, common.NewAppError("INVALID_UPLOAD", err.Error(), common.ErrInvalidInput)
	}
	defer func() { _ = f.Close() }()

	doc, err := s.deps.Loader.Load(fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return entity.SourceDocument{}, false, err
	}
	return doc, true, nil
}

func (s *HTTPServer) handleCreateSession(c *gin.Context) {
	doc, hasDoc, err := s.uploadedDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	w := s.deps.Sessions.Create()
	if hasDoc {
		if err := w.SelectDocument(doc); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, w.Snapshot())
}

func (s *HTTPServer) handleGetSession(c *gin.Context, w *workflow.Workflow) {
	c.JSON(http.StatusOK, w.Snapshot())
}

func (s *HTTPServer) handleDeleteSession(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Sessions.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) handleSelectDocument(c *gin.Context, w *workflow.Workflow) {
	doc, hasDoc, err := s.uploadedDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if !hasDoc {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "multipart field \"file\" is required")
		return
	}
	if err := w.SelectDocument(doc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (s *HTTPServer) handleExtract(c *gin.Context, w *workflow.Workflow) {
	ran, err := w.StartExtraction(detached(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ran {
		c.JSON(http.StatusAccepted, w.Snapshot())
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (s *HTTPServer) handleConfirm(c *gin.Context, w *workflow.Workflow) {
	if err := w.Confirm(detached(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (s *HTTPServer) handleRetry(c *gin.Context, w *workflow.Workflow) {
	if err := w.Retry(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (s *HTTPServer) handleReset(c *gin.Context, w *workflow.Workflow) {
	if err := w.Reset(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}
