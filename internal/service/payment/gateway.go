package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Виды платежей в metadata сессии шлюза.
const (
	KindSingle      = "single"
	KindInstallment = "installment"
)

const (
	sessionsPath      = "/v1/checkout/sessions"
	defaultTimeout    = 10 * time.Second
	defaultSessionTTL = 30 * time.Minute
	defaultCurrency   = "usd"
)

// GatewayConfig — параметры подключения к платёжному шлюзу.
type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	Currency   string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
	// Срок жизни сессии у шлюза.
	SessionTTL time.Duration
}

type sessionRequest struct {
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	Description       string            `json:"description,omitempty"`
	SuccessURL        string            `json:"success_url,omitempty"`
	CancelURL         string            `json:"cancel_url,omitempty"`
	ExpiresAt         int64             `json:"expires_at"`
	Metadata          map[string]string `json:"metadata"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ClientSecret string `json:"client_secret"`
	ExpiresAt    int64  `json:"expires_at"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPGateway открывает checkout-сессии у внешнего шлюза по HTTP.
type HTTPGateway struct {
	client *resty.Client
	cfg    GatewayConfig
	logger *log.Entry
	clock  func() time.Time
}

// NewHTTPGateway создаёт HTTP-клиент шлюза.
func NewHTTPGateway(cfg GatewayConfig, logger *log.Entry) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPGateway{
		client: client,
		cfg:    cfg,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// OpenSinglePaymentSession открывает сессию единовременной оплаты заказа.
func (g *HTTPGateway) OpenSinglePaymentSession(ctx context.Context, order domain.Order) (domain.PaymentSession, error) {
	req := sessionRequest{
		Amount:            domain.MinorUnits(order.Total()),
		ClientReferenceID: order.ID,
		CustomerEmail:     order.Customer.Email,
		Description:       fmt.Sprintf("Order %s", order.ID),
		Metadata: map[string]string{
			"kind":     KindSingle,
			"order_id": order.ID,
		},
	}
	key := fmt.Sprintf("order-%s-v%d", order.ID, order.Version)
	return g.open(ctx, req, key, order.ExpiresAt)
}

// OpenInstallmentSession открывает сессию оплаты одного платежа рассрочки.
func (g *HTTPGateway) OpenInstallmentSession(ctx context.Context, inst domain.Installment) (domain.PaymentSession, error) {
	req := sessionRequest{
		Amount:            domain.MinorUnits(inst.Amount),
		ClientReferenceID: inst.ID,
		Description:       fmt.Sprintf("Installment %d of order %s", inst.Number, inst.OrderID),
		Metadata: map[string]string{
			"kind":           KindInstallment,
			"installment_id": inst.ID,
			"settlement_id":  inst.SettlementID,
			"order_id":       inst.OrderID,
			"number":         fmt.Sprint(inst.Number),
		},
	}
	key := fmt.Sprintf("installment-%s-v%d", inst.ID, inst.Version)
	return g.open(ctx, req, key, time.Time{})
}

func (g *HTTPGateway) open(ctx context.Context, req sessionRequest, idempotencyKey string, deadline time.Time) (domain.PaymentSession, error) {
	expiresAt := g.clock().Add(g.cfg.SessionTTL)
	if !deadline.IsZero() && deadline.Before(expiresAt) {
		expiresAt = deadline
	}
	req.Currency = g.cfg.Currency
	req.SuccessURL = g.cfg.SuccessURL
	req.CancelURL = g.cfg.CancelURL
	req.ExpiresAt = expiresAt.Unix()

	var out sessionResponse
	var apiErr errorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(sessionsPath)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("open session %s: %v: %w", idempotencyKey, err, domain.ErrGateway)
	}
	if resp.IsError() {
		g.logger.WithFields(log.Fields{
			"status":          resp.StatusCode(),
			"error_type":      apiErr.Error.Type,
			"idempotency_key": idempotencyKey,
		}).Warn("gateway rejected session request")
		return domain.PaymentSession{}, fmt.Errorf("open session %s: status %d: %s: %w",
			idempotencyKey, resp.StatusCode(), apiErr.Error.Message, domain.ErrGateway)
	}
	if out.ID == "" {
		return domain.PaymentSession{}, fmt.Errorf("open session %s: empty session id: %w", idempotencyKey, domain.ErrGateway)
	}

	session := domain.PaymentSession{
		Ref:          out.ID,
		URL:          out.URL,
		ClientSecret: out.ClientSecret,
		ExpiresAt:    expiresAt,
	}
	if out.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(out.ExpiresAt, 0).UTC()
	}
	return session, nil
}

var _ domain.PaymentGateway = (*HTTPGateway)(nil)
