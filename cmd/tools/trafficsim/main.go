// main.go - Traffic simulator for folio: drives beacon clients against a server
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"folio/internal/beacon"
)

// SimConfig holds the configuration for a simulation run
type SimConfig struct {
	BaseURL       string
	SiteURL       string
	Visitors      int
	Duration      time.Duration
	ArrivalRate   float64
	PagesPerVisit int
	ThinkTime     time.Duration
	Heartbeat     time.Duration
	Timeout       time.Duration
	VerboseOutput bool
}

// SimStats holds statistics collected from every beacon request
type SimStats struct {
	TotalRequests  int64
	FailedRequests int64
	VisitsStarted  int64
	mu             sync.Mutex
	StatusCodes    map[int]int64
	ByPath         map[string]int64
	ResponseTimes  []time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

// recordingTransport wraps an http.RoundTripper and records every request
type recordingTransport struct {
	next  http.RoundTripper
	stats *SimStats
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	atomic.AddInt64(&t.stats.TotalRequests, 1)
	t.stats.mu.Lock()
	defer t.stats.mu.Unlock()
	t.stats.ByPath[req.URL.Path]++
	if err != nil {
		atomic.AddInt64(&t.stats.FailedRequests, 1)
		return nil, err
	}
	t.stats.StatusCodes[resp.StatusCode]++
	t.stats.ResponseTimes = append(t.stats.ResponseTimes, elapsed)
	if resp.StatusCode >= 400 {
		atomic.AddInt64(&t.stats.FailedRequests, 1)
	}
	return resp, nil
}

var pages = []string{"/", "/projects", "/projects/folio", "/projects/gopher-dash", "/about", "/blog", "/blog/go-generics", "/contact"}

var referrers = []string{"", "", "", "https://www.google.com/", "https://github.com/", "https://news.ycombinator.com/", "https://www.linkedin.com/"}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the folio server")
	siteURL := flag.String("site", "https://portfolio.example", "Public origin of the simulated site")
	visitors := flag.Int("visitors", 50, "Maximum number of concurrent visitors")
	duration := flag.Duration("d", 2*time.Minute, "Duration of the simulation")
	arrival := flag.Float64("rate", 2, "New visitors per second")
	pagesPerVisit := flag.Int("pages", 4, "Maximum pages viewed per visit")
	think := flag.Duration("think", 5*time.Second, "Maximum time spent on a page")
	heartbeat := flag.Duration("heartbeat", beacon.DefaultHeartbeatInterval, "Heartbeat interval")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := &SimConfig{
		BaseURL:       strings.TrimRight(*baseURL, "/"),
		SiteURL:       *siteURL,
		Visitors:      *visitors,
		Duration:      *duration,
		ArrivalRate:   max(0.1, *arrival),
		PagesPerVisit: max(1, *pagesPerVisit),
		ThinkTime:     max(100*time.Millisecond, *think),
		Heartbeat:     *heartbeat,
		Timeout:       *timeout,
		VerboseOutput: *verbose,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== folio Traffic Simulator ===")
	fmt.Printf("  URL (-url):            %s\n", cfg.BaseURL)
	fmt.Printf("  Visitors (-visitors):  %d concurrent at most\n", cfg.Visitors)
	fmt.Printf("  Arrival (-rate):       %.2f visitors/second\n", cfg.ArrivalRate)
	fmt.Printf("  Duration (-d):         %v\n", cfg.Duration)
	fmt.Printf("  Pages (-pages):        up to %d per visit\n", cfg.PagesPerVisit)
	fmt.Println("================================")

	stats := &SimStats{
		StatusCodes: make(map[int]int64),
		ByPath:      make(map[string]int64),
		StartTime:   time.Now(),
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &recordingTransport{next: http.DefaultTransport, stats: stats},
	}

	runSimulation(ctx, cfg, httpClient, stats, logger)

	stats.EndTime = time.Now()
	printResults(stats)
	printServerView(cfg, logger)
	exportResults(stats)
}

// runSimulation admits visitors at the arrival rate, never more than
// cfg.Visitors at once, and waits for every visit to end.
func runSimulation(ctx context.Context, cfg *SimConfig, httpClient *http.Client, stats *SimStats, logger *slog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(cfg.ArrivalRate), 1)
	slots := make(chan struct{}, cfg.Visitors)
	var wg sync.WaitGroup

	for visitor := 0; ; visitor++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		atomic.AddInt64(&stats.VisitsStarted, 1)
		go func(id int) {
			defer wg.Done()
			defer func() { <-slots }()
			visit(ctx, cfg, httpClient, logger, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(id))))
		}(visitor)
	}

	wg.Wait()
}

// visit plays one visitor's journey: a landing page, some reading with
// scrolling and clicks, and a few navigations.
func visit(ctx context.Context, cfg *SimConfig, httpClient *http.Client, logger *slog.Logger, rng *rand.Rand) {
	client := beacon.New(beacon.Options{
		Endpoint:          cfg.BaseURL,
		SiteURL:           cfg.SiteURL,
		HTTPClient:        httpClient,
		Logger:            logger,
		UserAgent:         userAgents[rng.IntN(len(userAgents))],
		HeartbeatInterval: cfg.Heartbeat,
	})
	defer client.Close()

	if rng.IntN(5) == 0 {
		client.SetUser(fmt.Sprintf("sim-user-%d", rng.IntN(100)))
	}

	extra := beacon.PageViewExtra{
		Referrer:     referrers[rng.IntN(len(referrers))],
		ScreenSize:   "1920x1080",
		ViewportSize: "1280x720",
		Language:     "en-US",
		Timezone:     "UTC",
	}

	client.TrackPageView(ctx, pages[rng.IntN(len(pages))], extra)
	client.StartOnlineMonitoring()
	logger.Debug("Visitor arrived", slog.String("session_id", client.GetOrCreateSessionID()))

	extra.Referrer = ""
	steps := 1 + rng.IntN(cfg.PagesPerVisit)
	for step := 0; step < steps; step++ {
		if step > 0 {
			client.Navigate(pages[rng.IntN(len(pages))], extra)
		}

		scroll := client.NewScrollTracker()
		dwell := time.Duration(rng.Int64N(int64(cfg.ThinkTime)))
		deadline := time.After(dwell)
		tick := time.NewTicker(dwell/4 + time.Millisecond)

		depth := 0.0
	reading:
		for {
			select {
			case <-tick.C:
				depth += float64(rng.IntN(40))
				scroll.Update(ctx, depth)
				client.NotifyActivity()
				if rng.IntN(6) == 0 {
					client.TrackUserAction(ctx, "click", map[string]any{"target": "project-card"})
				}
			case <-deadline:
				break reading
			case <-ctx.Done():
				tick.Stop()
				return
			}
		}
		tick.Stop()
	}
}

// printServerView shows what the server now reports for the simulated traffic
func printServerView(cfg *SimConfig, logger *slog.Logger) {
	resp, err := http.Get(cfg.BaseURL + "/analytics/realtime")
	if err != nil {
		logger.Warn("Could not read real-time stats", slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	var realTime map[string]any
	if err := json.Unmarshal(body, &realTime); err != nil {
		logger.Warn("Unexpected real-time response", slog.String("body", string(body)))
		return
	}

	fmt.Println("\nServer View (/analytics/realtime):")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, key := range []string{"onlineUsers", "todayViews", "totalViews"} {
		fmt.Fprintf(w, "%s\t%v\n", key, realTime[key])
	}
	w.Flush()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// printResults displays the run summary
func printResults(stats *SimStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	sort.Slice(stats.ResponseTimes, func(i, j int) bool {
		return stats.ResponseTimes[i] < stats.ResponseTimes[j]
	})

	elapsed := stats.EndTime.Sub(stats.StartTime)
	fmt.Println("\nSimulation Results:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Visits\t%d\n", stats.VisitsStarted)
	fmt.Fprintf(w, "Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Failed Requests\t%d\n", stats.FailedRequests)
	if elapsed > 0 {
		fmt.Fprintf(w, "Requests Per Second\t%.2f\n", float64(stats.TotalRequests)/elapsed.Seconds())
	}
	fmt.Fprintf(w, "p50 Latency\t%v\n", percentile(stats.ResponseTimes, 0.5))
	fmt.Fprintf(w, "p95 Latency\t%v\n", percentile(stats.ResponseTimes, 0.95))
	fmt.Fprintf(w, "p99 Latency\t%v\n", percentile(stats.ResponseTimes, 0.99))
	w.Flush()

	if len(stats.ByPath) > 0 {
		fmt.Println("\nRequests by Endpoint:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		paths := make([]string, 0, len(stats.ByPath))
		for path := range stats.ByPath {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(w, "%s\t%d\n", path, stats.ByPath[path])
		}
		w.Flush()
	}

	if len(stats.StatusCodes) > 0 {
		fmt.Println("\nStatus Code Distribution:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		codes := make([]int, 0, len(stats.StatusCodes))
		for code := range stats.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		const maxBarLength = 50
		var maxCount int64 = 1
		for _, count := range stats.StatusCodes {
			maxCount = max(maxCount, count)
		}
		for _, code := range codes {
			count := stats.StatusCodes[code]
			bar := strings.Repeat("█", int(float64(count)/float64(maxCount)*maxBarLength))
			fmt.Fprintf(w, "%d\t%d\t%s\n", code, count, bar)
		}
		w.Flush()
	}
}

// exportResults saves the run to a JSON file for external visualization
func exportResults(stats *SimStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	result := map[string]any{
		"summary": map[string]any{
			"visits":         stats.VisitsStarted,
			"totalRequests":  stats.TotalRequests,
			"failedRequests": stats.FailedRequests,
			"p50LatencyMs":   percentile(stats.ResponseTimes, 0.5).Milliseconds(),
			"p95LatencyMs":   percentile(stats.ResponseTimes, 0.95).Milliseconds(),
			"startTime":      stats.StartTime.Format(time.RFC3339),
			"endTime":        stats.EndTime.Format(time.RFC3339),
		},
		"statusCodes": stats.StatusCodes,
		"byPath":      stats.ByPath,
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("Error creating JSON output: %v\n", err)
		return
	}
	if err := os.WriteFile("sim_results.json", jsonData, 0o644); err != nil {
		fmt.Printf("Error writing results to file: %v\n", err)
		return
	}
	fmt.Println("\nDetailed results saved to 'sim_results.json'")
}
