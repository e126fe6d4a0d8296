package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100

	actorReaper  = "expiry-reaper"
	reasonReaper = "payment deadline passed"
)

var (
	expiryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_expiry_runs_total",
		Help: "Total number of expiry sweeps grouped by result.",
	}, []string{"result"})
	expiryExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_expiry_expired_total",
		Help: "Total number of orders moved to expired by the reaper.",
	})
	expiryCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_expiry_canceled_total",
		Help: "Total number of expired orders canceled by the reaper.",
	})
	expiryLastSwept = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sales_expiry_last_swept",
		Help: "Number of orders touched during the last sweep.",
	})
)

// Orders — операции над заказами, нужные reaper'у.
type Orders interface {
	ExpireDue(ctx context.Context, limit int) ([]domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	Cancel(ctx context.Context, id, actor, reason string) (domain.Order, error)
}

// Options задает параметры reaper'а.
type Options struct {
	Logger     *log.Entry
	Interval   time.Duration
	BatchSize  int
	AutoCancel bool
}

// Option настраивает Reaper.
type Option func(*Options)

// WithLogger задает logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithInterval задает интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) { opts.Interval = interval }
}

// WithBatchSize ограничивает число заказов за один запрос к хранилищу.
func WithBatchSize(size int) Option {
	return func(opts *Options) { opts.BatchSize = size }
}

// WithAutoCancel включает отмену просроченных заказов со снятием резерва.
func WithAutoCancel(enabled bool) Option {
	return func(opts *Options) { opts.AutoCancel = enabled }
}

// SweepResult — итог одного прохода.
type SweepResult struct {
	Expired  int
	Canceled int
}

// Reaper периодически переводит просроченные заказы в expired и, если включено, отменяет их.
type Reaper struct {
	orders     Orders
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	autoCancel bool
}

// NewReaper создает reaper.
func NewReaper(orders Orders, options ...Option) *Reaper {
	opts := Options{
		Interval:   defaultInterval,
		BatchSize:  defaultBatchSize,
		AutoCancel: true,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "expiry-reaper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &Reaper{
		orders:     orders,
		logger:     opts.Logger,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		autoCancel: opts.AutoCancel,
	}
}

// Run выполняет проходы до отмены ctx.
func (r *Reaper) Run(ctx context.Context) {
	if r.orders == nil {
		r.logger.Warn("expiry reaper is disabled: order service is nil")
		return
	}

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	res, err := r.Sweep(ctx)
	expiryLastSwept.Set(float64(res.Expired + res.Canceled))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		expiryRunsTotal.WithLabelValues("error").Inc()
		r.logger.WithError(err).Warn("expiry sweep failed")
		return
	}

	expiryRunsTotal.WithLabelValues("ok").Inc()
	if res.Expired > 0 || res.Canceled > 0 {
		r.logger.WithFields(log.Fields{
			"expired":  res.Expired,
			"canceled": res.Canceled,
		}).Info("expiry sweep completed")
	}
}

// Sweep переводит просроченные pending-заказы в expired порциями batchSize,
// затем отменяет все заказы в статусе expired, включая помеченные при чтении.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	for {
		expired, err := r.orders.ExpireDue(ctx, r.batchSize)
		res.Expired += len(expired)
		expiryExpiredTotal.Add(float64(len(expired)))
		if err != nil {
			return res, err
		}
		if len(expired) < r.batchSize {
			break
		}
	}

	if !r.autoCancel {
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		candidates, err := r.orders.List(ctx, domain.OrderFilter{
			Statuses: []domain.OrderStatus{domain.OrderStatusExpired},
			Limit:    r.batchSize,
		})
		if err != nil {
			return res, err
		}

		canceled := 0
		for _, order := range candidates {
			_, err := r.orders.Cancel(ctx, order.ID, actorReaper, reasonReaper)
			switch {
			case err == nil:
				canceled++
			case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrConflict):
				r.logger.WithError(err).WithField("order_id", order.ID).Debug("order changed before cancel, skipping")
			default:
				return res, err
			}
		}
		res.Canceled += canceled
		expiryCanceledTotal.Add(float64(canceled))

		// Без прогресса повторный запрос вернёт те же заказы.
		if len(candidates) < r.batchSize || canceled == 0 {
			break
		}
	}
	return res, nil
}
