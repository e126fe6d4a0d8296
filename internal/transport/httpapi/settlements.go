package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/checkout"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
)

func (a *API) getSettlement(c *gin.Context) {
	details, err := a.svc.Settlements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDetails(details, a.clock()))
}

func (a *API) voidSettlement(c *gin.Context) {
	var req voidRequest
	if !a.bind(c, &req) {
		return
	}
	s, err := a.svc.Settlements.Void(c.Request.Context(), c.Param("id"), settlement.VoidInput{
		Reason: req.Reason,
		Actor:  actorOr(req.Actor),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettlement(s))
}

func (a *API) installmentStats(c *gin.Context) {
	stats, err := a.svc.Installments.Stats(c.Request.Context(), c.Param("id"), a.clock())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toStats(stats))
}

// listInstallments: settlement_id, paid=true|false, overdue=true, due_before (RFC3339), limit.
func (a *API) listInstallments(c *gin.Context) {
	filter := domain.InstallmentFilter{SettlementID: c.Query("settlement_id")}
	if raw := c.Query("paid"); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			a.invalid(c, err)
			return
		}
		filter.Paid = &paid
	}
	if raw := c.Query("due_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.invalid(c, err)
			return
		}
		filter.DueBefore = ts
	}
	if raw := c.Query("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		if err != nil {
			a.invalid(c, err)
			return
		}
		if overdue {
			unpaid := false
			filter.Paid = &unpaid
			filter.DueBefore = a.clock()
		}
	}
	limit, ok := a.queryLimit(c)
	if !ok {
		return
	}
	filter.Limit = limit

	list, err := a.svc.Installments.List(c.Request.Context(), filter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"installments": toInstallments(list, a.clock())})
}

func (a *API) openInstallmentSession(c *gin.Context) {
	session, err := a.svc.Installments.OpenPaymentSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSession(session))
}

func checkoutOf(conf orders.Confirmation) checkout.Result {
	return checkout.Result{Order: conf.Order, Confirmation: &conf}
}
