package app

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
	"github.com/vladislavdragonenkov/sales/internal/service/webhook"
)

// SaleLifecycleTestSuite прогоняет полный путь продажи через собранный граф зависимостей.
type SaleLifecycleTestSuite struct {
	suite.Suite
	ctx  context.Context
	deps *Dependencies
}

func (s *SaleLifecycleTestSuite) SetupTest() {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	cfg := memoryConfig()
	cfg.CashTTL = 50 * time.Millisecond
	cfg.ExpiryAutoCancel = true

	deps, err := NewDependencies(context.Background(), cfg, logger.WithField("component", "lifecycle-test"))
	s.Require().NoError(err)
	s.deps = deps
	s.ctx = context.Background()

	_, err = deps.Inventory.RegisterVariant(s.ctx, registerInput("v1", 10))
	s.Require().NoError(err)
}

func (s *SaleLifecycleTestSuite) TearDownTest() {
	s.Require().NoError(s.deps.Close())
}

func (s *SaleLifecycleTestSuite) stock() int {
	v, err := s.deps.Inventory.GetVariant(s.ctx, "v1")
	s.Require().NoError(err)
	return v.Stock
}

func (s *SaleLifecycleTestSuite) TestCardCheckoutConfirmedByWebhook() {
	res, err := s.deps.Checkout.Checkout(s.ctx, checkoutInput("v1", 2))
	s.Require().NoError(err)
	s.Require().NotNil(res.Session)
	s.Equal(domain.OrderStatusPending, res.Order.Status)
	s.Equal(8, s.stock())

	ev := domain.PaymentEvent{
		ID:         "evt_1",
		Kind:       domain.PaymentEventSingleSucceeded,
		SessionRef: res.Session.Ref,
		PaymentRef: "pi_1",
		OrderID:    res.Order.ID,
	}
	outcome, err := s.deps.Webhooks.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(webhook.OutcomeApplied, outcome.Kind)

	again, err := s.deps.Webhooks.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(webhook.OutcomeDuplicate, again.Kind)

	order, err := s.deps.Orders.Get(s.ctx, res.Order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, order.Status)
	s.Equal(8, s.stock())

	details, err := s.deps.Settlements.GetByOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.SettlementStatusCompleted, details.Settlement.Status)

	timeline, err := s.deps.Orders.Timeline(s.ctx, order.ID)
	s.Require().NoError(err)
	s.NotEmpty(timeline)

	stats, err := s.deps.Outbox.Stats()
	s.Require().NoError(err)
	s.Positive(stats.PendingCount)
}

func (s *SaleLifecycleTestSuite) TestCashSaleVoidKeepsStock() {
	in := checkoutInput("v1", 3)
	in.PaymentMethod = domain.PaymentMethodCash
	in.Installments = 0

	res, err := s.deps.Checkout.Checkout(s.ctx, in)
	s.Require().NoError(err)
	s.Nil(res.Session)

	conf, err := s.deps.Orders.Confirm(s.ctx, res.Order.ID, orders.ConfirmInput{PaymentReference: "cash-1", Actor: "cashier"})
	s.Require().NoError(err)
	s.Equal(7, s.stock())

	voided, err := s.deps.Settlements.Void(s.ctx, conf.Settlement.ID, settlement.VoidInput{Reason: "customer changed mind", Actor: "manager"})
	s.Require().NoError(err)
	s.Equal(domain.SettlementStatusVoided, voided.Status)
	s.Equal(7, s.stock())

	_, err = s.deps.Settlements.Void(s.ctx, conf.Settlement.ID, settlement.VoidInput{Reason: "again"})
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
}

func (s *SaleLifecycleTestSuite) TestCancelReleasesReservation() {
	res, err := s.deps.Checkout.Checkout(s.ctx, checkoutInput("v1", 4))
	s.Require().NoError(err)
	s.Equal(6, s.stock())

	canceled, err := s.deps.Orders.Cancel(s.ctx, res.Order.ID, "customer", "changed mind")
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCanceled, canceled.Status)
	s.Equal(10, s.stock())

	_, err = s.deps.Orders.Confirm(s.ctx, res.Order.ID, orders.ConfirmInput{PaymentReference: "late"})
	s.ErrorIs(err, domain.ErrInvalidStateTransition)
}

func (s *SaleLifecycleTestSuite) TestReaperExpiresAndCancelsUnpaidOrders() {
	in := checkoutInput("v1", 5)
	in.PaymentMethod = domain.PaymentMethodCash
	in.Installments = 0

	res, err := s.deps.Checkout.Checkout(s.ctx, in)
	s.Require().NoError(err)
	s.Equal(5, s.stock())

	time.Sleep(80 * time.Millisecond)

	swept, err := s.deps.Reaper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, swept.Expired)
	s.Equal(1, swept.Canceled)
	s.Equal(10, s.stock())

	order, err := s.deps.Orders.Get(s.ctx, res.Order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCanceled, order.Status)
}

func (s *SaleLifecycleTestSuite) TestInstallmentPlanPaidThroughWebhooks() {
	in := checkoutInput("v1", 2)
	in.Installments = 3

	res, err := s.deps.Checkout.Checkout(s.ctx, in)
	s.Require().NoError(err)
	s.Require().NotNil(res.Confirmation)
	schedule := res.Confirmation.Installments
	s.Require().Len(schedule, 3)

	for i, inst := range schedule {
		session, err := s.deps.Installments.OpenPaymentSession(s.ctx, inst.ID)
		s.Require().NoError(err)

		outcome, err := s.deps.Webhooks.Handle(s.ctx, domain.PaymentEvent{
			ID:            "evt_inst_" + inst.ID,
			Kind:          domain.PaymentEventInstallmentSucceeded,
			SessionRef:    session.Ref,
			PaymentRef:    "pi_" + inst.ID,
			InstallmentID: inst.ID,
		})
		s.Require().NoError(err, "installment %d", i+1)
		s.Equal(webhook.OutcomeApplied, outcome.Kind)
	}

	stats, err := s.deps.Installments.Stats(s.ctx, res.Confirmation.Settlement.ID, time.Time{})
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(3, stats.Paid)
	s.True(stats.AmountPending.IsZero())
	s.True(stats.AmountPaid.Equal(res.Confirmation.Settlement.Total))
}

func TestSaleLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(SaleLifecycleTestSuite))
}
