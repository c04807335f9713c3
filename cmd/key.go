package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the LLM API key in the OS keyring",
}

var keySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store the API key (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("empty key")
		}
		if err := config.SaveAPIKey(config.SystemUser(), key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved to keyring")
		return nil
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		if !cfg.LLM.Configured() {
			fmt.Fprintln(w, "No API key configured")
			return nil
		}
		if stored, err := config.LoadAPIKey(config.SystemUser()); err == nil && stored == cfg.LLM.APIKey {
			fmt.Fprintln(w, "API key loaded from keyring")
			return nil
		}
		fmt.Fprintln(w, "API key loaded from environment")
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyStatusCmd)
}
