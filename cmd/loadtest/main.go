// loadtest бомбардирует POST /v1/admissions и проверяет инвариант
// вместимости: принятых заказов не может быть больше, чем остаток недели.
// После прогона сверяет локальные счётчики с /metrics сервиса.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const idempotencyHeader = "Idempotency-Key"

type config struct {
	addr          string
	metricsAddr   string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	keyPrefix     string
	outputPath    string
	verifyMetrics bool
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	TotalRequests   int64            `json:"total_requests"`
	Allowed         int64            `json:"allowed"`
	Rejected        int64            `json:"rejected"`
	Failed          int64            `json:"failed"`
	ErrorRate       float64          `json:"error_rate"`
	RPS             float64          `json:"rps"`
	LatencyMs       latencySummary   `json:"latency_ms"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	MetricsVerified bool             `json:"metrics_verified"`
	MetricsAllowed  float64          `json:"metrics_allowed,omitempty"`
	MetricsRejected float64          `json:"metrics_rejected,omitempty"`
	WeekRemaining   float64          `json:"week_remaining,omitempty"`
}

type admissionResponse struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	WeekStart string `json:"week_start"`
}

type collector struct {
	mu        sync.Mutex
	allowed   int64
	rejected  int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{codes: make(map[string]int64)}
}

func (c *collector) record(latency time.Duration, statusCode int, allowed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
	switch {
	case err != nil:
		c.failed++
		c.codes["error"]++
	case allowed:
		c.allowed++
		c.codes[fmt.Sprintf("%d", statusCode)]++
	default:
		c.rejected++
		c.codes[fmt.Sprintf("%d", statusCode)]++
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.allowed + c.rejected + c.failed
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		TotalRequests:   total,
		Allowed:         c.allowed,
		Rejected:        c.rejected,
		Failed:          c.failed,
		LatencyMs:       buildLatencySummary(c.latencies),
		StatusCodes:     make(map[string]int64, len(c.codes)),
	}
	for code, count := range c.codes {
		result.StatusCodes[code] = count
	}
	if total > 0 {
		result.ErrorRate = float64(c.failed) / float64(total)
	}
	if duration > 0 {
		result.RPS = float64(total) / duration.Seconds()
	}
	return result
}

func parseConfig() (config, error) {
	var cfg config
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "capacity service base URL")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "http://localhost:9090", "metrics endpoint base URL")
	flag.IntVar(&cfg.total, "total", 200, "total admission requests in count mode")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 5m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&cfg.keyPrefix, "key-prefix", "lt", "idempotency key prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.BoolVar(&cfg.verifyMetrics, "verify-metrics", true, "scrape /metrics after the run and report server-side counters")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if strings.TrimSpace(cfg.keyPrefix) == "" {
		return cfg, errors.New("key-prefix is required")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runAdmission(client, cfg, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)

	if cfg.verifyMetrics {
		if err := enrichFromMetrics(client, cfg.metricsAddr, &result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "metrics verification failed: %v\n", err)
		}
	}

	printReport(result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
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

func runAdmission(client *http.Client, cfg config, index int, runID string, col *collector) {
	start := time.Now()

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(cfg.addr, "/")+"/v1/admissions", bytes.NewReader(nil))
	if err != nil {
		col.record(time.Since(start), 0, false, err)
		return
	}
	req.Header.Set(idempotencyHeader, fmt.Sprintf("%s-%s-%d", cfg.keyPrefix, runID, index))

	resp, err := client.Do(req)
	if err != nil {
		col.record(time.Since(start), 0, false, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		col.record(time.Since(start), resp.StatusCode, false, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		col.record(time.Since(start), resp.StatusCode, false, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}

	var decision admissionResponse
	if err := json.Unmarshal(body, &decision); err != nil {
		col.record(time.Since(start), resp.StatusCode, false, err)
		return
	}

	col.record(time.Since(start), resp.StatusCode, decision.Allowed, nil)
}

// enrichFromMetrics читает серверные counters, чтобы сверить их с клиентскими.
func enrichFromMetrics(client *http.Client, metricsAddr string, result *report) error {
	resp, err := client.Get(strings.TrimRight(metricsAddr, "/") + "/metrics")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected metrics status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	result.MetricsAllowed = counterValue(families, "capacity_admissions_allowed_total")
	result.MetricsRejected = counterValue(families, "capacity_admissions_rejected_total")
	result.WeekRemaining = gaugeValue(families, "capacity_week_remaining")
	result.MetricsVerified = true
	return nil
}

func counterValue(families map[string]*dto.MetricFamily, name string) float64 {
	family, ok := families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, metric := range family.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	family, ok := families[name]
	if !ok {
		return 0
	}
	var value float64
	for _, metric := range family.GetMetric() {
		value = metric.GetGauge().GetValue()
	}
	return value
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report) {
	fmt.Println("Load test summary")
	fmt.Printf("total=%d allowed=%d rejected=%d failed=%d error_rate=%.4f\n",
		result.TotalRequests,
		result.Allowed,
		result.Rejected,
		result.Failed,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)

	if result.MetricsVerified {
		fmt.Printf("server metrics: allowed=%.0f rejected=%.0f week_remaining=%.0f\n",
			result.MetricsAllowed,
			result.MetricsRejected,
			result.WeekRemaining,
		)
	}

	codes := make([]string, 0, len(result.StatusCodes))
	for code := range result.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("status %s: %d\n", code, result.StatusCodes[code])
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
