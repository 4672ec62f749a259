// Binary tradectl is a menu-driven editor and launcher for the engine config.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tradepilot-go/internal/config"
)

const defaultConfigPath = "internal/config/engine.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== TradePilot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit sizing and risk knobs")
		fmt.Println("3) Edit symbols")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch engine")
		fmt.Println("6) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editSizing(reader, cfg)
		case "3":
			editSymbols(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launchEngine(reader)
		case "6":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Environment: %s\n", cfg.App.Env)
	fmt.Printf("Symbols: %s (benchmark %s)\n", strings.Join(cfg.Feed.Symbols, ", "), cfg.Feed.Benchmark.Symbol)
	fmt.Printf("Provider: %s\n", cfg.Feed.Provider)
	fmt.Printf("Starting cash: %.2f\n", cfg.Paper.StartingCash)
	fmt.Printf("Risk per trade: %.2f%% of base\n", cfg.Sizing.RiskPct*100)
	fmt.Printf("Min order value: %.0f\n", cfg.Sizing.MinOrderValue)
	fmt.Printf("Margin caps: derivatives %.0f%% | cash %.0f%%\n", cfg.Sizing.DerivCapPct*100, cfg.Sizing.CashCapPct*100)
	fmt.Printf("Base threshold: %.1f (floor %.1f, ceiling %.1f)\n",
		cfg.Evaluate.BaseThreshold, cfg.Evaluate.ThresholdFloor, cfg.Evaluate.ThresholdCeil)
	fmt.Printf("Max holding: %d min (options %d min), close-out %d min before %s\n",
		cfg.Lifecycle.MaxAgeMins, cfg.Lifecycle.OptionsMaxAgeMins, cfg.Lifecycle.PreCloseMins, cfg.App.SessionClose)
}

func editSizing(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Sizing / Risk ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Sizing.RiskPct = promptPercent(reader, "Risk per trade (%)", cfg.Sizing.RiskPct)
	cfg.Sizing.MinOrderValue = promptFloat(reader, "Min order value", cfg.Sizing.MinOrderValue)
	cfg.Sizing.DerivCapPct = promptPercent(reader, "Derivatives margin cap (%)", cfg.Sizing.DerivCapPct)
	cfg.Sizing.CashCapPct = promptPercent(reader, "Cash margin cap (%)", cfg.Sizing.CashCapPct)
	cfg.Lifecycle.EmergencyLossAbs = promptFloat(reader, "Emergency loss cap", cfg.Lifecycle.EmergencyLossAbs)
}

func editSymbols(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Symbols ---")
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Feed.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		parts := strings.Split(strings.TrimSpace(line), ",")
		cfg.Feed.Symbols = nil
		for _, p := range parts {
			if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
				cfg.Feed.Symbols = append(cfg.Feed.Symbols, trimmed)
			}
		}
	}
	fmt.Printf("Current benchmark: %s\n", cfg.Feed.Benchmark.Symbol)
	fmt.Print("Enter benchmark symbol (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Feed.Benchmark.Symbol = strings.ToUpper(strings.TrimSpace(line))
	}
}

func launchEngine(reader *bufio.Reader) {
	fmt.Println("Launching engine (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/engine")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the engine and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if path := os.Getenv("TRADEPILOT_CONFIG"); path != "" {
		return path
	}
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
