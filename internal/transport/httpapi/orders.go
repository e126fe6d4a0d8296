package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
)

func (a *API) createOrder(c *gin.Context) {
	var req createOrderRequest
	if !a.bind(c, &req) {
		return
	}
	res, err := a.svc.Checkout.Checkout(c.Request.Context(), req.input())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCheckout(res, a.clock()))
}

func (a *API) listOrders(c *gin.Context) {
	filter := domain.OrderFilter{CustomerID: c.Query("customer_id")}
	for _, s := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, domain.OrderStatus(s))
	}
	if raw := c.Query("expires_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.invalid(c, err)
			return
		}
		filter.ExpiresBefore = ts
	}
	limit, ok := a.queryLimit(c)
	if !ok {
		return
	}
	filter.Limit = limit

	list, err := a.svc.Orders.List(c.Request.Context(), filter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": toOrders(list)})
}

func (a *API) getOrder(c *gin.Context) {
	order, err := a.svc.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order))
}

func (a *API) confirmOrder(c *gin.Context) {
	var req confirmRequest
	if !a.bind(c, &req) {
		return
	}
	conf, err := a.svc.Orders.Confirm(c.Request.Context(), c.Param("id"), orders.ConfirmInput{
		PaymentReference: req.PaymentReference,
		SellerID:         req.SellerID,
		Actor:            actorOr(req.Actor),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCheckout(checkoutOf(conf), a.clock()))
}

func (a *API) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if !a.bindOptional(c, &req) {
		return
	}
	order, err := a.svc.Orders.Cancel(c.Request.Context(), c.Param("id"), actorOr(req.Actor), req.Reason)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order))
}

func (a *API) reopenSession(c *gin.Context) {
	res, err := a.svc.Checkout.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCheckout(res, a.clock()))
}

func (a *API) orderTimeline(c *gin.Context) {
	events, err := a.svc.Orders.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toTimeline(events)})
}

func (a *API) orderSettlement(c *gin.Context) {
	details, err := a.svc.Settlements.GetByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDetails(details, a.clock()))
}

// queryLimit читает необязательный параметр limit. При ошибке ответ уже записан.
func (a *API) queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		a.invalid(c, err)
		return 0, false
	}
	return limit, true
}
