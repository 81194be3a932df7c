package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medius/internal/security"
)

// newHashPasscodeCmd prints the BRIDGE_PASSCODE_HASH value for a passcode
// read from stdin.
func newHashPasscodeCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-passcode",
		Short: "Hash a bridge passcode read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read passcode: %w", err)
			}
			hash, err := security.NewPasscodeHasher(cost).Hash(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "BRIDGE_PASSCODE_HASH=%s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (0 for default)")
	return cmd
}
