package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

func (a *API) registerVariant(c *gin.Context) {
	var req registerVariantRequest
	if !a.bind(c, &req) {
		return
	}
	v, err := a.svc.Inventory.RegisterVariant(c.Request.Context(), inventory.RegisterInput{
		ID:        req.ID,
		ProductID: req.ProductID,
		SKU:       req.SKU,
		Name:      req.Name,
		Stock:     req.Stock,
		Price:     req.Price,
		Cost:      req.Cost,
		Actor:     actorOr(req.Actor),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toVariant(v))
}

func (a *API) getVariant(c *gin.Context) {
	v, err := a.svc.Inventory.GetVariant(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toVariant(v))
}

func (a *API) adjustVariant(c *gin.Context) {
	var req adjustRequest
	if !a.bind(c, &req) {
		return
	}
	res, err := a.svc.Inventory.Adjust(c.Request.Context(), inventory.Adjustment{
		VariantID: c.Param("id"),
		Mode:      inventory.AdjustMode(req.Mode),
		Value:     req.Value,
		Actor:     actorOr(req.Actor),
		Reason:    req.Reason,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAdjust(res))
}

func (a *API) variantMovements(c *gin.Context) {
	filter := domain.MovementFilter{VariantID: c.Param("id")}
	for _, t := range c.QueryArray("type") {
		filter.Types = append(filter.Types, domain.MovementType(t))
	}
	limit, ok := a.queryLimit(c)
	if !ok {
		return
	}
	filter.Limit = limit

	list, err := a.svc.Inventory.Movements(c.Request.Context(), filter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": toMovements(list)})
}
