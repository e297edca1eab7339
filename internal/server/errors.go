package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/ingest"
	"github.com/joseph-ayodele/invoice-attestor/internal/workflow"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrBusy):
		writeErrorCode(c, http.StatusConflict, "BUSY", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeErrorCode(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, common.ErrPrecondition):
		writeErrorCode(c, http.StatusUnprocessableEntity, "PRECONDITION_FAILED", messageOf(err))
	case errors.Is(err, ingest.ErrUnsupportedMedia):
		writeErrorCode(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", messageOf(err))
	case errors.Is(err, ingest.ErrDocumentTooLarge):
		writeErrorCode(c, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", messageOf(err))
	case errors.Is(err, common.ErrNotFound):
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", messageOf(err))
	case errors.Is(err, common.ErrInvalidInput):
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", messageOf(err))
	default:
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// messageOf prefers the AppError message over the full wrapped chain.
func messageOf(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
