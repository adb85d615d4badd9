package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Tobiadefami/gaussformula/internal/spreadsheet"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Args:  cobra.NoArgs,
	Short: "Load cell assignments from a script file and print recalculated results",
	Long: `Reads a script of "address = value" assignments, one per line, applies
them to a single worksheet, runs one recompute pass, and prints each
assigned cell's resolved value. Values beginning with "=" are parsed as
formulas; everything else is taken as a literal number, boolean, or string.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().String("script", "", "path to the assignment script (required)")
	evalCmd.Flags().String("worksheet", "Sheet1", "worksheet the script's addresses live on")
	evalCmd.Flags().String("format", "text", "output format: text or json")
	evalCmd.Flags().Uint64("seed", 0, "RNG seed for RAND()/RANDBETWEEN() and distribution sampling (0 = time-seeded)")
	evalCmd.Flags().Int("sample-size", 0, "Monte Carlo sample count per distribution (0 = engine default)")
}

type assignment struct {
	address string
	raw     string
}

func runEval(cmd *cobra.Command, args []string) error {
	scriptPath, _ := cmd.Flags().GetString("script")
	if scriptPath == "" {
		return fmt.Errorf("--script flag is required")
	}
	worksheetName, _ := cmd.Flags().GetString("worksheet")
	format, _ := cmd.Flags().GetString("format")
	seed, _ := cmd.Flags().GetUint64("seed")
	sampleSize, _ := cmd.Flags().GetInt("sample-size")

	assignments, err := parseScript(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	cfg := spreadsheet.DefaultConfig()
	if seed != 0 {
		cfg.RNGSeed = &seed
	}
	if sampleSize > 0 {
		cfg.SampleSize = sampleSize
	}
	if verbose {
		cfg.LogLevel = spreadsheet.LogLevelDebug
	}

	sheet, err := spreadsheet.NewSpreadsheetWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}

	if !sheet.DoesWorksheetExist(worksheetName) {
		if err := sheet.AddWorksheet(worksheetName); err != nil {
			return fmt.Errorf("failed to add worksheet %q: %w", worksheetName, err)
		}
	}

	for _, a := range assignments {
		address := qualify(a.address, worksheetName)
		if err := sheet.Set(address, literalFor(a.raw)); err != nil {
			return fmt.Errorf("failed to set %s: %w", address, err)
		}
	}

	if err := sheet.Calculate(); err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}

	results := make([]cellResult, 0, len(assignments))
	for _, a := range assignments {
		address := qualify(a.address, worksheetName)
		value, err := sheet.Get(address)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", address, err)
		}
		results = append(results, describeValue(address, value))
	}

	switch format {
	case "json":
		return printJSON(results)
	default:
		printText(results)
		return nil
	}
}

func parseScript(path string) ([]assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []assignment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("malformed line, expected address=value: %q", line)
		}
		address := strings.TrimSpace(line[:idx])
		raw := strings.TrimSpace(line[idx+1:])
		out = append(out, assignment{address: address, raw: raw})
	}
	return out, scanner.Err()
}

// qualify prefixes a bare address with the active worksheet unless it
// already carries one.
func qualify(address, worksheet string) string {
	if strings.Contains(address, "!") {
		return address
	}
	return worksheet + "!" + address
}

// literalFor classifies a raw right-hand side into the Primitive the
// engine expects: formulas keep their leading "=", numbers and booleans
// are parsed, everything else is a string.
func literalFor(raw string) spreadsheet.Primitive {
	if strings.HasPrefix(raw, "=") {
		return raw
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

type cellResult struct {
	Address string  `json:"address"`
	Kind    string  `json:"kind"`
	Value   string  `json:"value"`
	Mean    float64 `json:"mean,omitempty"`
	StdDev  float64 `json:"stddev,omitempty"`
}

func describeValue(address string, value spreadsheet.Primitive) cellResult {
	switch v := value.(type) {
	case spreadsheet.Distribution:
		mean, _ := v.MeanValue()
		samples, err := v.Samples(1000, nil)
		stddev := 0.0
		if err == nil {
			_, stddev, _ = spreadsheet.Refit(samples)
		}
		return cellResult{Address: address, Kind: v.Kind.String(), Value: fmt.Sprintf("~%.6g", mean), Mean: mean, StdDev: stddev}
	case *spreadsheet.SpreadsheetError:
		return cellResult{Address: address, Kind: "error", Value: v.Error()}
	case float64:
		return cellResult{Address: address, Kind: "number", Value: strconv.FormatFloat(v, 'g', -1, 64)}
	case bool:
		return cellResult{Address: address, Kind: "boolean", Value: strconv.FormatBool(v)}
	case string:
		return cellResult{Address: address, Kind: "string", Value: v}
	case nil:
		return cellResult{Address: address, Kind: "empty", Value: ""}
	default:
		return cellResult{Address: address, Kind: "unknown", Value: fmt.Sprintf("%v", v)}
	}
}

func isDistributionKind(kind string) bool {
	switch kind {
	case "gaussian", "lognormal", "uniform", "confidence_interval", "sampled":
		return true
	default:
		return false
	}
}

func printText(results []cellResult) {
	for _, r := range results {
		if isDistributionKind(r.Kind) {
			fmt.Printf("%-20s %-20s mean=%.6g stddev=%.6g\n", r.Address, r.Kind, r.Mean, r.StdDev)
			continue
		}
		fmt.Printf("%-20s %-10s %s\n", r.Address, r.Kind, r.Value)
	}
}

func printJSON(results []cellResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
