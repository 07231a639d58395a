package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks [index]",
	Short: "Print the chain, or a single block.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  blocksRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the node.",
	RunE:  statusRun,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print the pending transactions.",
	RunE:  pendingRun,
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingCmd)
}

func blocksRun(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/v1/blocks", url)
	if len(args) == 1 {
		endpoint = fmt.Sprintf("%s/%s", endpoint, args[0])
	}

	var resp any
	if err := call(http.MethodGet, endpoint, nil, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}

func statusRun(cmd *cobra.Command, args []string) error {
	var resp any
	if err := call(http.MethodGet, fmt.Sprintf("%s/v1/status", url), nil, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}

func pendingRun(cmd *cobra.Command, args []string) error {
	var resp any
	if err := call(http.MethodGet, fmt.Sprintf("%s/v1/tx/pending", url), nil, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}
