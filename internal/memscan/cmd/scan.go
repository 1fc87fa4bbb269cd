package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memscan/internal/codec"
	"memscan/internal/config"
	"memscan/internal/proc"
	"memscan/internal/scan"
)

// JSONMatch is one scan hit in machine-readable output.
type JSONMatch struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

// JSONScanResult is the `scan --json` output structure, used for
// regression testing.
type JSONScanResult struct {
	Pid     int         `json:"pid"`
	Type    string      `json:"type"`
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Matches []JSONMatch `json:"matches"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <pid>",
	Short: "Run a single initial scan and print the matches",
	Long: `Scan runs one full sweep of the target's memory for the given value
and prints every address that holds it. Useful for scripting; the
interactive session (narrowing, editing) lives in the TUI.`,
	Example: `
# All int32 locations currently holding 100
memscan scan 4242 --type int32 --value 100

# Include shared modules, emit JSON
memscan scan 4242 -t float64 -v 3.5 --all --json
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return fmt.Errorf("invalid pid %q", args[0])
		}

		typeName, _ := cmd.Flags().GetString("type")
		value, _ := cmd.Flags().GetString("value")
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")

		kind, err := codec.ParseKind(typeName)
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("--value is required")
		}

		cfg, err := config.Load()
		if err != nil {
			slog.Warn("Using default configuration", "error", err)
		}

		target, err := proc.Open(pid)
		if err != nil {
			return err
		}
		defer target.Close()

		session := scan.NewSession(kind)
		store, err := session.InitialScan(cmd.Context(), target, target, value,
			scan.WithChunkSize(cfg.ChunkSize),
			scan.WithWorkers(cfg.Workers),
			scan.WithAllRegions(all || cfg.ScanAllRegions),
		)
		if err != nil {
			if errors.Is(err, scan.ErrCancelled) {
				return fmt.Errorf("scan cancelled")
			}
			return err
		}

		matches := store.Matches()
		if asJSON {
			out := JSONScanResult{
				Pid:     pid,
				Type:    kind.String(),
				Query:   value,
				Count:   len(matches),
				Matches: make([]JSONMatch, 0, len(matches)),
			}
			for _, m := range matches {
				out.Matches = append(out.Matches, JSONMatch{
					Address: fmt.Sprintf("0x%x", m.Addr),
					Value:   m.Value,
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("%d match(es) for %s %s in pid %d\n", len(matches), kind, value, pid)
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		for i, m := range matches {
			if limit > 0 && i >= limit {
				fmt.Fprintf(w, "... and %d more (raise --limit to see them)\n", len(matches)-limit)
				break
			}
			fmt.Fprintf(w, "0x%x\t%s\n", m.Addr, m.Value)
		}
		return w.Flush()
	},
}

func init() {
	scanCmd.Flags().StringP("type", "t", "int32", "Data type: int8, int16, int32, int64, float32, float64")
	scanCmd.Flags().StringP("value", "v", "", "Value to scan for")
	scanCmd.Flags().BoolP("all", "a", false, "Scan shared modules and mapped files too")
	scanCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	scanCmd.Flags().Int("limit", 50, "Maximum matches to print (0 = no limit)")
}
