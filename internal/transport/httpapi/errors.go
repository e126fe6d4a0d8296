package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const kindInternal = string(domain.KindInternal)

type errorPayload struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func errorBody(kind, message string) gin.H {
	return gin.H{"error": errorPayload{Kind: kind, Message: message}}
}

// statusFor сопоставляет вид доменной ошибки HTTP-статусу.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindReferenceNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindInvalidStateTransition,
		domain.KindConflict, domain.KindReconciliation:
		return http.StatusConflict
	case domain.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"request_id": c.GetString(ctxRequestID),
			"path":       c.FullPath(),
		}).Error("request failed")
	}

	payload := errorPayload{Kind: string(kind), Message: err.Error()}
	if status == http.StatusInternalServerError {
		payload.Message = "internal error"
	}
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		payload.Fields = map[string]string{"variant_id": stockErr.VariantID}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": payload})
}

func (a *API) invalid(c *gin.Context, err error) {
	payload := errorPayload{Kind: string(domain.KindValidation), Message: err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		payload.Message = "request validation failed"
		payload.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			payload.Fields[fe.Field()] = fe.Tag()
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": payload})
}
