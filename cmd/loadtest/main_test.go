package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/app"
	"github.com/vladislavdragonenkov/sales/internal/transport/httpapi"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	os.Args = append([]string{"loadtest"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func newSalesServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := app.DefaultConfig()
	cfg.WebhookSecret = "whsec_test"
	deps, err := app.NewDependencies(context.Background(), cfg, log.WithField("test", "loadtest"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	srv := httptest.NewServer(httpapi.NewRouter(deps.HTTPServices()))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(url string) config {
	return config{
		baseURL:     url,
		total:       10,
		concurrency: 3,
		timeout:     5 * time.Second,
		mode:        modeCreateConfirm,
		variantID:   "VAR-LOAD",
		quantity:    1,
		seedStock:   50,
		price:       "10.00",
		customerTag: "load",
	}
}

func TestParseMode(t *testing.T) {
	for _, value := range []string{"create", " create-confirm ", "create-cancel"} {
		mode, err := parseMode(value)
		require.NoError(t, err)
		require.Equal(t, loadMode(strings.TrimSpace(value)), mode)
	}

	_, err := parseMode("create-pay")
	require.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	args := []string{
		"-base-url=http://sales:8080",
		"-total=25",
		"-concurrency=4",
		"-timeout=2s",
		"-mode=create-cancel",
		"-variant=V-9",
		"-quantity=2",
		"-seed-stock=100",
		"-output=out.json",
	}
	withCLIArgs(t, args, func() {
		cfg, err := parseConfig()
		require.NoError(t, err)
		require.Equal(t, "http://sales:8080", cfg.baseURL)
		require.Equal(t, 25, cfg.total)
		require.True(t, cfg.totalSet)
		require.Equal(t, 4, cfg.concurrency)
		require.Equal(t, 2*time.Second, cfg.timeout)
		require.Equal(t, modeCreateCancel, cfg.mode)
		require.Equal(t, "V-9", cfg.variantID)
		require.Equal(t, 2, cfg.quantity)
		require.Equal(t, 100, cfg.seedStock)
		require.Equal(t, "out.json", cfg.outputPath)
	})

	withCLIArgs(t, []string{"-mode=bogus"}, func() {
		_, err := parseConfig()
		require.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, baseConfig("http://x").validate())

	cases := map[string]func(*config){
		"base url":       func(c *config) { c.baseURL = " " },
		"negative dur":   func(c *config) { c.duration = -time.Second },
		"zero total":     func(c *config) { c.total = 0 },
		"explicit total": func(c *config) { c.duration, c.totalSet, c.total = time.Second, true, 0 },
		"concurrency":    func(c *config) { c.concurrency = 0 },
		"timeout":        func(c *config) { c.timeout = 0 },
		"quantity":       func(c *config) { c.quantity = 0 },
		"seed stock":     func(c *config) { c.seedStock = -1 },
		"cancel rate":    func(c *config) { c.cancelRate = 101 },
		"variant":        func(c *config) { c.variantID = "" },
		"customer tag":   func(c *config) { c.customerTag = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig("http://x")
			mutate(&cfg)
			require.Error(t, cfg.validate())
		})
	}

	cfg := baseConfig("http://x")
	cfg.duration, cfg.total = time.Second, 0
	require.NoError(t, cfg.validate())
}

func TestDispatchJobs(t *testing.T) {
	drain := func(cfg config) int {
		jobs := make(chan int, 8)
		go dispatchJobs(jobs, cfg)
		count := 0
		for range jobs {
			count++
		}
		return count
	}

	require.Equal(t, 5, drain(config{total: 5}))
	require.Equal(t, 3, drain(config{total: 3, totalSet: true, duration: time.Minute}))
	require.Positive(t, drain(config{duration: 20 * time.Millisecond}))
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record("CreateOrder", 10*time.Millisecond, http.StatusCreated)
	col.record("CreateOrder", 30*time.Millisecond, http.StatusConflict)
	col.record(scenarioStep, 20*time.Millisecond, http.StatusOK)
	col.record(scenarioStep, 40*time.Millisecond, 0)

	step, ok := col.snapshot("CreateOrder")
	require.True(t, ok)
	require.Equal(t, int64(2), step.Calls)
	require.Equal(t, int64(1), step.Failed)
	require.Equal(t, map[string]int64{"201": 1, "409": 1}, step.Codes)
	require.InDelta(t, 20.0, step.LatencyMs.Avg, 0.001)

	_, ok = col.snapshot("missing")
	require.False(t, ok)

	cfg := baseConfig("http://sales")
	result := col.buildReport(cfg, time.Now(), 2*time.Second)
	require.Equal(t, "http://sales", result.BaseURL)
	require.Equal(t, modeCreateConfirm, result.Mode)
	require.Equal(t, int64(2), result.TotalScenarios)
	require.Equal(t, int64(1), result.FailedScenarios)
	require.InDelta(t, 0.5, result.ErrorRate, 0.0001)
	require.InDelta(t, 1.0, result.RPS, 0.0001)
	require.Equal(t, int64(1), result.Steps[scenarioStep].Codes["transport_error"])
}

func TestUtilityFunctions(t *testing.T) {
	require.Equal(t, latencySummary{}, buildLatencySummary(nil))
	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 4.0, summary.Max)
	require.InDelta(t, 2.5, summary.P50, 0.0001)

	require.Zero(t, percentile(nil, 50))
	require.Equal(t, 7.0, percentile([]float64{7}, 99))
	require.Zero(t, ratio(1, 0))
	require.InDelta(t, 0.25, ratio(1, 4), 0.0001)

	require.False(t, shouldCancelScenario(5, 0))
	require.True(t, shouldCancelScenario(5, 100))
	require.True(t, shouldCancelScenario(105, 10))
	require.False(t, shouldCancelScenario(15, 10))

	require.Equal(t, "transport_error", codeLabel(0))
	require.Equal(t, "502", codeLabel(http.StatusBadGateway))

	require.Equal(t, http.StatusOK, statusOf(nil))
	require.Equal(t, http.StatusConflict, statusOf(&statusError{step: "x", status: http.StatusConflict}))
	require.Zero(t, statusOf(errors.New("dial tcp: refused")))
}

func TestWriteJSONReport(t *testing.T) {
	t.Chdir(t.TempDir())

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3, Mode: modeCreate}))
	raw, err := os.ReadFile("report.json")
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, int64(3), decoded.TotalScenarios)
	require.Equal(t, modeCreate, decoded.Mode)
}

func TestExecute_CreateConfirmWithCancelRate(t *testing.T) {
	srv := newSalesServer(t)
	cfg := baseConfig(srv.URL)
	cfg.cancelRate = 4

	result, err := execute(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int64(10), result.TotalScenarios)
	require.Zero(t, result.FailedScenarios)
	require.Equal(t, int64(10), result.Steps["CreateOrder"].Calls)
	require.Equal(t, int64(6), result.Steps["ConfirmOrder"].Success)
	require.Equal(t, int64(4), result.Steps["CancelOrder"].Success)
}

func TestExecute_CardCheckout(t *testing.T) {
	srv := newSalesServer(t)
	cfg := baseConfig(srv.URL)
	cfg.mode = modeCreate

	result, err := execute(context.Background(), cfg)
	require.NoError(t, err)
	require.Zero(t, result.FailedScenarios)
	require.Equal(t, int64(10), result.Steps["CreateOrder"].Codes["201"])
	require.NotContains(t, result.Steps, "ConfirmOrder")
}

func TestExecute_StockExhaustion(t *testing.T) {
	srv := newSalesServer(t)
	cfg := baseConfig(srv.URL)
	cfg.total = 4
	cfg.concurrency = 1
	cfg.seedStock = 2

	result, err := execute(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.FailedScenarios)
	require.Equal(t, int64(2), result.Steps["CreateOrder"].Codes["409"])
	require.Equal(t, int64(2), result.Steps["ConfirmOrder"].Calls)
}

func TestExecute_SeedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"kind":"validation_error","message":"sku is required"}}`)
	}))
	defer srv.Close()

	_, err := execute(context.Background(), baseConfig(srv.URL))
	var se *statusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.status)
	require.Equal(t, "validation_error", se.body.Error.Kind)
}

func TestPrintReport(t *testing.T) {
	out := captureStdout(t, func() {
		printReport(report{
			BaseURL:        "http://sales",
			Mode:           modeCreateCancel,
			TotalScenarios: 1,
			Steps: map[string]stepReport{
				scenarioStep:  {Calls: 1},
				"CreateOrder": {Calls: 1, Success: 1},
			},
		}, config{total: 1})
	})

	require.Contains(t, out, "target=http://sales mode=create-cancel run=count:1")
	require.Contains(t, out, "CreateOrder: calls=1 success=1")
	require.NotContains(t, out, "scenario: calls")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}
