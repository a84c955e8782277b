package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailmirror/pkg/apperr"
)

// respondError maps an error kind to an HTTP status and a response body
// carrying both the human-readable message and the machine-checkable kind.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindCredentialMissing:
		status = http.StatusUnauthorized
	case apperr.KindValidationFailed:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindRemoteFetchFailed, apperr.KindEnrichmentFailed:
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
