package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

const (
	outcomeOK             = "ok"
	outcomeTransport      = "transport_error"
	outcomeReplayMismatch = "replay_mismatch"
)

// stepStats копит результаты одного шага сценария.
type stepStats struct {
	outcomes  map[string]int64
	latencies []time.Duration
}

// recorder собирает латентность и исходы шагов со всех воркеров.
type recorder struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newRecorder() *recorder {
	return &recorder{steps: make(map[string]*stepStats)}
}

func (r *recorder) observe(step string, latency time.Duration, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.steps[step]
	if !ok {
		stats = &stepStats{outcomes: make(map[string]int64)}
		r.steps[step] = stats
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, latency)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt        time.Time             `json:"started_at"`
	DurationSeconds  float64               `json:"duration_seconds"`
	RPS              float64               `json:"rps"`
	TotalScenarios   int64                 `json:"total_scenarios"`
	SuccessScenarios int64                 `json:"success_scenarios"`
	FailedScenarios  int64                 `json:"failed_scenarios"`
	Steps            map[string]stepReport `json:"steps"`
}

// report сворачивает накопленное в итог прогона; шаг "scenario" даёт итоговые счётчики.
func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Steps:           make(map[string]stepReport, len(r.steps)),
	}
	for name, stats := range r.steps {
		out.Steps[name] = summarize(stats)
	}

	if scenario, ok := out.Steps[stepScenario]; ok {
		out.TotalScenarios = scenario.Calls
		out.FailedScenarios = scenario.Failed
		out.SuccessScenarios = scenario.Calls - scenario.Failed
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func summarize(stats *stepStats) stepReport {
	sr := stepReport{Outcomes: make(map[string]int64, len(stats.outcomes))}
	for outcome, count := range stats.outcomes {
		sr.Outcomes[outcome] = count
		sr.Calls += count
		if outcome != outcomeOK {
			sr.Failed += count
		}
	}
	if sr.Calls > 0 {
		sr.ErrorRate = float64(sr.Failed) / float64(sr.Calls)
	}
	sr.LatencyMs = latencyMs(stats.latencies)
	return sr
}

func latencyMs(values []time.Duration) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var total time.Duration
	for _, v := range sorted {
		total += v
	}
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	return latencySummary{
		Min: ms(sorted[0]),
		Avg: ms(total / time.Duration(len(sorted))),
		P50: ms(nearestRank(sorted, 50)),
		P95: ms(nearestRank(sorted, 95)),
		P99: ms(nearestRank(sorted, 99)),
		Max: ms(sorted[len(sorted)-1]),
	}
}

// nearestRank возвращает p-й перцентиль отсортированной выборки без интерполяции.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func printReport(result report, cfg config) {
	fmt.Printf("Load test summary: mode=%s run=%s\n", cfg.mode, runTarget(cfg))
	fmt.Printf("scenarios=%d ok=%d failed=%d elapsed=%.2fs rps=%.2f\n\n",
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios,
		result.DurationSeconds, result.RPS)

	names := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STEP\tCALLS\tFAILED\tP50 ms\tP95 ms\tP99 ms\tOUTCOMES")
	for _, name := range names {
		s := result.Steps[name]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			name, s.Calls, s.Failed, s.LatencyMs.P50, s.LatencyMs.P95, s.LatencyMs.P99, formatOutcomes(s.Outcomes))
	}
	_ = tw.Flush()
}

func formatOutcomes(outcomes map[string]int64) string {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, outcomes[k]))
	}
	return strings.Join(parts, ",")
}

// writeJSONReport пишет отчёт только внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if !filepath.IsLocal(clean) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}
