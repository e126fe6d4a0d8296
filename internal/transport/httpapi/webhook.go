package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/payment"
)

const maxWebhookBody = 1 << 20

// paymentWebhook принимает событие шлюза. Ошибка подписи или формата даёт 400,
// любой обработанный итог (включая duplicate и reconciliation) отвечает 200,
// чтобы шлюз не повторял доставку. 500 только при сбое инфраструктуры.
func (a *API) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		a.invalid(c, err)
		return
	}
	if a.svc.Verifier != nil {
		if err := a.svc.Verifier.Verify(payload, c.GetHeader(payment.SignatureHeader)); err != nil {
			a.logger.WithError(err).Warn("webhook rejected")
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(string(domain.KindGateway), "invalid signature"))
			return
		}
	}

	ev, err := payment.ParseEvent(payload)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(string(domain.KindValidation), err.Error()))
		return
	}

	outcome, err := a.svc.Webhooks.Handle(c.Request.Context(), ev)
	if err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"event_id":   ev.ID,
			"event_type": ev.RawType,
		}).Error("webhook processing failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(kindInternal, "internal error"))
		return
	}

	resp := gin.H{"outcome": outcome.Kind, "event_id": ev.ID}
	if outcome.OrderID != "" {
		resp["order_id"] = outcome.OrderID
	}
	if outcome.InstallmentID != "" {
		resp["installment_id"] = outcome.InstallmentID
	}
	c.JSON(http.StatusOK, resp)
}
