// loadtest гоняет сценарии оформления заказов против HTTP API sales-service
// и печатает сводку по задержкам и кодам ответов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const scenarioStep = "scenario"

type loadMode string

const (
	modeCreate        loadMode = "create"
	modeCreateConfirm loadMode = "create-confirm"
	modeCreateCancel  loadMode = "create-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	variantID   string
	quantity    int
	seedStock   int
	price       string
	customerTag string
	outputPath  string
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "sales-service HTTP base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-confirm | create-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of create-confirm scenarios canceled instead of confirmed (0..100)")
	flag.StringVar(&cfg.variantID, "variant", "VAR-LOAD", "variant id to order")
	flag.IntVar(&cfg.quantity, "quantity", 1, "units per order")
	flag.IntVar(&cfg.seedStock, "seed-stock", 0, "register the variant with this stock before the run (0 = skip)")
	flag.StringVar(&cfg.price, "price", "10.00", "unit price used when seeding the variant")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case strings.TrimSpace(cfg.baseURL) == "":
		return errors.New("base-url is required")
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return errors.New("quantity must be > 0")
	case cfg.seedStock < 0:
		return errors.New("seed-stock must be >= 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.variantID) == "":
		return errors.New("variant is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return errors.New("customer-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateConfirm, modeCreateCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := execute(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// execute прогоняет все сценарии и собирает отчёт.
func execute(ctx context.Context, cfg config) (report, error) {
	col := newCollector()
	client := newSalesClient(cfg.baseURL, cfg.timeout, col)

	if cfg.seedStock > 0 {
		if err := client.registerVariant(ctx, cfg); err != nil {
			return report{}, err
		}
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := runScenario(ctx, client, cfg, id, runID); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(cfg, startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario выполняет один сценарий. В режиме create создаётся карточный заказ с
// платёжной сессией, в остальных режимах наличный заказ подтверждается или отменяется.
func runScenario(ctx context.Context, client *salesClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		client.col.record(scenarioStep, time.Since(start), statusOf(err))
	}()

	method := "cash"
	if cfg.mode == modeCreate {
		method = "card"
	}
	body := createOrderBody{
		CustomerID:    fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		Items:         []orderItem{{VariantID: cfg.variantID, Quantity: cfg.quantity}},
		PaymentMethod: method,
		Actor:         "loadtest",
	}

	orderID, err := client.createOrder(ctx, body, fmt.Sprintf("lt-create-%s-%d", runID, index))
	if err != nil {
		return err
	}

	switch {
	case cfg.mode == modeCreate:
		return nil
	case cfg.mode == modeCreateCancel || shouldCancelScenario(index, cfg.cancelRate):
		return client.cancelOrder(ctx, orderID)
	default:
		return client.confirmOrder(ctx, orderID, fmt.Sprintf("lt-confirm-%s-%d", runID, index))
	}
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
