package cmd

import (
	"fmt"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"memscan/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the debug log written by a TUI session",
	Long: `Logs prints the log file produced when the TUI runs with
MEMSCAN_LOG_TO_FILE=1. With --follow it keeps streaming new lines,
which is the usual way to watch a scan from a second terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")

		t, err := tail.TailFile(logging.DefaultLogPath(), tail.Config{
			Follow:    follow,
			ReOpen:    follow,
			MustExist: true,
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			return fmt.Errorf("open log file: %w (run the TUI with MEMSCAN_LOG_TO_FILE=1 first)", err)
		}
		defer t.Cleanup()

		done := cmd.Context().Done()
		for {
			select {
			case line, ok := <-t.Lines:
				if !ok {
					return nil
				}
				if line.Err != nil {
					return line.Err
				}
				fmt.Println(line.Text)
			case <-done:
				return t.Stop()
			}
		}
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Keep streaming new log lines")
}
