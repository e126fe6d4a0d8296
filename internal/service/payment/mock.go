package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// MockGateway — конфигурируемая заглушка платёжного шлюза для разработки и тестов.
type MockGateway struct {
	mu sync.Mutex

	// Err возвращается каждым вызовом, если задан.
	Err error
	// Число первых вызовов, завершающихся ошибкой шлюза.
	FailFirst int
	// BaseURL используется для построения ссылки на оплату.
	BaseURL string

	SingleCalls      int
	InstallmentCalls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{BaseURL: "https://pay.example.test/checkout"}
}

// OpenSinglePaymentSession считает вызовы и возвращает сессию cs_<order id>.
func (m *MockGateway) OpenSinglePaymentSession(_ context.Context, order domain.Order) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SingleCalls++
	if err := m.failure(); err != nil {
		return domain.PaymentSession{}, err
	}
	return m.session("cs_" + order.ID), nil
}

// OpenInstallmentSession считает вызовы и возвращает сессию cs_<installment id>.
func (m *MockGateway) OpenInstallmentSession(_ context.Context, inst domain.Installment) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InstallmentCalls++
	if err := m.failure(); err != nil {
		return domain.PaymentSession{}, err
	}
	return m.session("cs_" + inst.ID), nil
}

// Calls возвращает общее число обращений к шлюзу.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SingleCalls + m.InstallmentCalls
}

func (m *MockGateway) failure() error {
	if m.Err != nil {
		return m.Err
	}
	if m.FailFirst > 0 {
		m.FailFirst--
		return fmt.Errorf("mock gateway unavailable: %w", domain.ErrGateway)
	}
	return nil
}

func (m *MockGateway) session(ref string) domain.PaymentSession {
	return domain.PaymentSession{
		Ref:          ref,
		URL:          m.BaseURL + "/" + ref,
		ClientSecret: ref + "_secret",
		ExpiresAt:    time.Now().UTC().Add(defaultSessionTTL),
	}
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
