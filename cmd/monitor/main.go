package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"exitpilot/internal/monitor"
	"exitpilot/internal/report"
	"exitpilot/internal/trade"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "env file")
	path := fs.String("states", "", "YAML file of trade states (falls back to EXITPILOT_STATES)")
	asJSON := fs.Bool("json", false, "print evaluations as JSON instead of a table")
	steps := fs.Int("replay", 1, "evaluate repeatedly, applying actions between rounds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("load env %s: %w", *envFile, err)
		}
	}
	if *path == "" {
		*path = os.Getenv("EXITPILOT_STATES")
	}
	if *path == "" {
		return fmt.Errorf("-states is required")
	}
	states, err := monitor.LoadStates(*path)
	if err != nil {
		return err
	}
	if *steps < 1 {
		*steps = 1
	}
	for round := 1; round <= *steps; round++ {
		evals := make([]monitor.Evaluation, len(states))
		for i, st := range states {
			evals[i] = monitor.EvaluateTrade(st)
		}
		if *steps > 1 {
			fmt.Fprintf(out, "round %d\n", round)
		}
		if err := render(out, states, evals, *asJSON); err != nil {
			return err
		}
		states = applyAll(states, evals)
	}
	return nil
}

func render(out io.Writer, states []trade.State, evals []monitor.Evaluation, asJSON bool) error {
	if !asJSON {
		report.ActionsTable(out, states, evals)
		return nil
	}
	type row struct {
		TradeID string `json:"trade_id"`
		monitor.Evaluation
	}
	rows := make([]row, len(evals))
	for i, ev := range evals {
		rows[i] = row{TradeID: states[i].ID, Evaluation: ev}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func applyAll(states []trade.State, evals []monitor.Evaluation) []trade.State {
	next := make([]trade.State, len(states))
	for i, st := range states {
		next[i] = monitor.Apply(st, evals[i].Actions)
	}
	return next
}
