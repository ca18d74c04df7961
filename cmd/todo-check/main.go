package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"todocheck/internal/check"
	"todocheck/internal/todoapi"
)

func main() {
	baseURL := flag.String("base-url", envOr("TODOCHECK_BASE_URL", "http://localhost:8000"), "Base URL of the ToDo API under test")
	timeout := flag.Duration("timeout", 15*time.Second, "Per-request HTTP timeout")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full report JSON to this file")
	quiet := flag.Bool("quiet", false, "Suppress live per-check progress output")
	strict := flag.Bool("strict", false, "Exit non-zero unless every check passes")
	flag.Parse()

	client := todoapi.NewClient(todoapi.Config{
		BaseURL: *baseURL,
		Timeout: *timeout,
	})

	// Bound the whole run, not just single requests, so a stalling target
	// cannot hang the process.
	ctx, cancel := context.WithTimeout(context.Background(), *timeout*8)
	defer cancel()

	emit := printProgress
	if *quiet || strings.EqualFold(*format, "json") {
		emit = nil
	}
	report := check.Run(ctx, client, check.Specs(), emit)

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(report)
	default:
		printText(report)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := writeReport(*outputPath, report); err != nil {
			exitWith("failed to write report: " + err.Error())
		}
	}

	if *strict && !report.Passed() {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func printProgress(outcome check.Outcome) {
	switch outcome.State {
	case check.StateRunning:
		fmt.Printf("... %s\n", outcome.Name)
	case check.StatePassed:
		fmt.Printf("[PASS] %s (%dms)\n", outcome.Name, outcome.DurationMS)
	case check.StateFailed:
		fmt.Printf("[FAIL] %s - %s (%dms)\n", outcome.Name, outcome.Reason, outcome.DurationMS)
	}
}

func printText(report check.Report) {
	fmt.Printf("\nTarget: %s\n", report.BaseURL)
	fmt.Printf("Generated: %s\n\n", report.GeneratedAt)

	for _, outcome := range report.Outcomes {
		label := strings.ToUpper(string(outcome.State))
		fmt.Printf("[%s] %s %s", label, outcome.Method, outcome.Name)
		if len(outcome.URLs) > 0 {
			fmt.Printf(" (%s)", strings.Join(outcome.URLs, " -> "))
		}
		fmt.Println()
		if outcome.Reason != "" {
			fmt.Printf("  reason: %s\n", outcome.Reason)
		}
	}

	fmt.Printf("\nScore: %d/%d\n", report.Score, report.Total)
}

func printJSON(report check.Report) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitWith("failed to encode report JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func writeReport(path string, report check.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
