package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"memscan/internal/config"
	"memscan/internal/memscan/log"
)

var rootCmd = &cobra.Command{
	Use:   "memscan [pid]",
	Short: "Terminal memory scanner and editor for live processes",
	Long: `Memscan locates addresses in a running process that hold a chosen
numeric value, narrows them down as the value changes in the target,
and lets you overwrite a resolved address.

Run it with no arguments to pick a process interactively, or pass a
pid to attach straight away. Root (or an elevated prompt) is usually
required to read another process's memory.`,
	Example: `
# Pick a process interactively
memscan

# Attach to pid 4242
memscan 4242

# One-shot scan without the TUI
memscan scan 4242 --type int32 --value 100
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		if !term.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("stdout is not a terminal; use `memscan scan` for non-interactive scans")
		}

		warnIfUnprivileged()

		pid := 0
		if len(args) == 1 {
			p, err := strconv.Atoi(args[0])
			if err != nil || p <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			pid = p
		}

		cfg, err := config.Load()
		if err != nil {
			slog.Warn("Using default configuration", "error", err)
		}

		program := tea.NewProgram(
			NewModel(pid, cfg),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

func warnIfUnprivileged() {
	if runtime.GOOS != "windows" && os.Geteuid() != 0 {
		slog.Warn("Not running as root; most processes will refuse memory access")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(schemaCmd)
}

func Execute() {
	debug := false
	piped := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "-d" || arg == "--debug" {
			debug = true
		}
	}
	log.Setup(debug)

	if piped {
		// Use cobra directly to avoid fang's markdown rendering when
		// output is consumed by another program.
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
