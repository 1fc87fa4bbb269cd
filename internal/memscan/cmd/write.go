package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"memscan/internal/codec"
	"memscan/internal/proc"
	"memscan/internal/scan"
)

var writeCmd = &cobra.Command{
	Use:   "write <pid> <addr> <value>",
	Short: "Write a value directly to an address in the target",
	Long: `Write encodes the value as the chosen data type and stores it at the
given address. The address is taken as-is; it does not have to come
from a previous scan.`,
	Example: `
memscan write 4242 0x7ffe12345678 9999 --type int32
memscan write 4242 0x5601a2b3c000 1.5 -t float32 --no-verify
  `,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return fmt.Errorf("invalid pid %q", args[0])
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		value := args[2]

		typeName, _ := cmd.Flags().GetString("type")
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		kind, err := codec.ParseKind(typeName)
		if err != nil {
			return err
		}

		target, err := proc.Open(pid)
		if err != nil {
			return err
		}
		defer target.Close()

		var opts []scan.WriteOption
		if !noVerify {
			opts = append(opts, scan.WithVerify())
		}
		if err := scan.Write(target, addr, value, kind, opts...); err != nil {
			return err
		}

		fmt.Printf("wrote %s %s at 0x%x\n", kind, value, addr)
		return nil
	},
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	addr, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q (expected hex)", s)
	}
	return addr, nil
}

func init() {
	writeCmd.Flags().StringP("type", "t", "int32", "Data type: int8, int16, int32, int64, float32, float64")
	writeCmd.Flags().Bool("no-verify", false, "Skip the read-back check after writing")
}
