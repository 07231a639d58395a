package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/spf13/cobra"
)

var (
	authority     string
	solutionsPath string
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Ask the node to propose the next block.",
	RunE:  proposeRun,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the node to replay and validate the chain.",
	RunE:  validateRun,
}

func init() {
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(validateCmd)
	proposeCmd.Flags().StringVar(&authority, "authority", "", "Authority name or identity for authority rotation.")
	proposeCmd.Flags().StringVarP(&solutionsPath, "solutions", "s", "", "Path to a json file with the solutions for weighted value selection.")
}

func proposeRun(cmd *cobra.Command, args []string) error {
	req := struct {
		Authority string               `json:"authority,omitempty"`
		Solutions []consensus.Solution `json:"solutions,omitempty"`
	}{
		Authority: authority,
	}

	if solutionsPath != "" {
		content, err := os.ReadFile(solutionsPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(content, &req.Solutions); err != nil {
			return fmt.Errorf("parsing solutions: %w", err)
		}
	}

	var resp any
	if err := call(http.MethodPost, fmt.Sprintf("%s/v1/node/propose", privateURL), req, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}

func validateRun(cmd *cobra.Command, args []string) error {
	var resp struct {
		Valid             bool   `json:"valid"`
		FirstInvalidIndex uint64 `json:"first_invalid_index"`
		Reason            string `json:"reason"`
	}
	if err := call(http.MethodGet, fmt.Sprintf("%s/v1/node/validate", privateURL), nil, &resp); err != nil {
		return err
	}

	if !resp.Valid {
		return fmt.Errorf("chain invalid at block %d: %s", resp.FirstInvalidIndex, resp.Reason)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "chain valid")
	return nil
}
