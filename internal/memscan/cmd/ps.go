package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memscan/internal/proclist"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List candidate target processes",
	Long: `Ps lists running processes, largest resident set first. System
processes and tiny daemons are hidden unless --all is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		entries, err := proclist.List(all)
		if err != nil {
			return fmt.Errorf("list processes: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tNAME\tUSER\tRSS(MB)")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\n", e.Pid, e.Name, e.User, float64(e.RSS)/(1<<20))
		}
		return w.Flush()
	},
}

func init() {
	psCmd.Flags().BoolP("all", "a", false, "Include system processes")
}
