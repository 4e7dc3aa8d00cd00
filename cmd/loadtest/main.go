package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type loadMode string

const (
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
	modeCheckoutReplay loadMode = "checkout-replay"
)

type config struct {
	baseURL      string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	timeout      time.Duration
	mode         loadMode
	cancelRate   int
	dishID       string
	users        int
	emailPattern string
	jwtSecret    string
	issuer       string
	pickupPoint  string
	outputPath   string
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "caffe service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers; each worker owns one user cart")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-cancel | checkout-replay")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout mode (0..100)")
	fs.StringVar(&cfg.dishID, "dish", "", "dish id added to the cart in every scenario")
	fs.IntVar(&cfg.users, "users", 20, "number of seeded users to spread the load over")
	fs.StringVar(&cfg.emailPattern, "email-pattern", "load%d@caffe.test", "fmt pattern for seeded user emails")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 secret shared with the service (fallback: CAFFE_AUTH__JWT_SECRET)")
	fs.StringVar(&cfg.issuer, "issuer", "caffe-auth", "token issuer")
	fs.StringVar(&cfg.pickupPoint, "pickup-point", "Load test", "pickup point for created orders")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		cfg.jwtSecret, _ = lookup("CAFFE_AUTH__JWT_SECRET")
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.users < cfg.concurrency:
		// у каждого воркера своя корзина, иначе checkout одного опустошит корзину другого
		return cfg, errors.New("users must be >= concurrency")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.dishID) == "":
		return cfg, errors.New("dish is required")
	case !strings.Contains(cfg.emailPattern, "%d"):
		return cfg, errors.New("email-pattern must contain %d")
	case strings.TrimSpace(cfg.jwtSecret) == "":
		return cfg, errors.New("jwt-secret is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCheckout, modeCheckoutCancel, modeCheckoutReplay:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := runLoad(cfg, &http.Client{Timeout: cfg.timeout})

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

func runLoad(cfg config, httpClient *http.Client) report {
	startedAt := time.Now()
	rec := newRecorder()

	clients := make([]*apiClient, 0, cfg.concurrency)
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		client, err := newAPIClient(cfg, httpClient, fmt.Sprintf(cfg.emailPattern, workerID))
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		clients = append(clients, client)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(client, cfg, index, rec)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return rec.report(startedAt, time.Since(startedAt))
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
