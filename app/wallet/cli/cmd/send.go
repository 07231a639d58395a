package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	from     string
	to       string
	amount   string
	metadata map[string]string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Sender name or identity, defaults to the wallet identity.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Recipient name or identity.")
	sendCmd.Flags().StringVarP(&amount, "amount", "v", "", "Amount to send.")
	sendCmd.Flags().StringToStringVarP(&metadata, "metadata", "m", nil, "Metadata to attach: key=value.")
}

func sendRun(cmd *cobra.Command, args []string) error {
	sender := from
	if sender == "" {
		id, err := identity()
		if err != nil {
			return fmt.Errorf("no sender and no wallet: %w", err)
		}
		sender = id
	}

	tx := struct {
		Sender    string            `json:"sender"`
		Recipient string            `json:"recipient"`
		Amount    string            `json:"amount"`
		Metadata  map[string]string `json:"metadata,omitempty"`
	}{
		Sender:    sender,
		Recipient: to,
		Amount:    amount,
		Metadata:  metadata,
	}

	var resp struct {
		Status string `json:"status"`
		ID     string `json:"transaction_id"`
	}
	if err := call(http.MethodPost, fmt.Sprintf("%s/v1/tx/submit", url), tx, &resp); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.ID)
	return nil
}
