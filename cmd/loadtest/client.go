package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const idempotencyHeader = "Idempotency-Key"

// salesClient — тонкая обёртка над HTTP API sales-service для нагрузочного теста.
type salesClient struct {
	http *resty.Client
	col  *collector
}

type orderItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderBody struct {
	CustomerID    string      `json:"customer_id"`
	Items         []orderItem `json:"items"`
	PaymentMethod string      `json:"payment_method"`
	Actor         string      `json:"actor"`
}

type checkoutBody struct {
	Order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type statusError struct {
	step   string
	status int
	body   errorBody
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s %s", e.step, e.status, e.body.Error.Kind, e.body.Error.Message)
}

func newSalesClient(baseURL string, timeout time.Duration, col *collector) *salesClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &salesClient{http: client, col: col}
}

// registerVariant заводит вариант с заданным остатком; 409 означает, что он уже существует.
func (c *salesClient) registerVariant(ctx context.Context, cfg config) error {
	body := map[string]any{
		"id":    cfg.variantID,
		"sku":   cfg.variantID,
		"name":  "load test variant",
		"stock": cfg.seedStock,
		"price": cfg.price,
		"cost":  "0",
		"actor": "loadtest",
	}
	var apiErr errorBody
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetError(&apiErr).Post("/variants")
	if err != nil {
		return fmt.Errorf("register variant: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil
	}
	if resp.IsError() {
		return &statusError{step: "RegisterVariant", status: resp.StatusCode(), body: apiErr}
	}
	return nil
}

func (c *salesClient) createOrder(ctx context.Context, body createOrderBody, key string) (string, error) {
	var out checkoutBody
	if err := c.do(ctx, "CreateOrder", key, "/orders", body, &out); err != nil {
		return "", err
	}
	if out.Order.ID == "" {
		return "", errors.New("create response returned empty order id")
	}
	return out.Order.ID, nil
}

func (c *salesClient) confirmOrder(ctx context.Context, orderID, key string) error {
	body := map[string]string{"payment_reference": "lt-" + orderID, "actor": "loadtest"}
	return c.do(ctx, "ConfirmOrder", key, "/orders/"+orderID+"/confirm", body, nil)
}

func (c *salesClient) cancelOrder(ctx context.Context, orderID string) error {
	body := map[string]string{"reason": "load-cancel", "actor": "loadtest"}
	return c.do(ctx, "CancelOrder", "", "/orders/"+orderID+"/cancel", body, nil)
}

func (c *salesClient) do(ctx context.Context, step, key, path string, body, out any) error {
	req := c.http.R().SetContext(ctx).SetBody(body)
	if key != "" {
		req.SetHeader(idempotencyHeader, key)
	}
	if out != nil {
		req.SetResult(out)
	}
	var apiErr errorBody
	req.SetError(&apiErr)

	start := time.Now()
	resp, err := req.Post(path)
	if err != nil {
		c.col.record(step, time.Since(start), 0)
		return fmt.Errorf("%s: %w", step, err)
	}
	c.col.record(step, time.Since(start), resp.StatusCode())
	if resp.IsError() {
		return &statusError{step: step, status: resp.StatusCode(), body: apiErr}
	}
	return nil
}

// statusOf возвращает HTTP-статус ошибки шага или 0 для транспортных ошибок.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}
