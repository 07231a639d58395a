package cmd

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type balance struct {
	Address string          `json:"address"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Print the balance of the address, or of your wallet.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  balanceRun,
}

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Print the balance of every account.",
	RunE:  balancesRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(balancesCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	var address string
	switch len(args) {
	case 1:
		address = args[0]
	default:
		id, err := identity()
		if err != nil {
			return err
		}
		address = id
	}

	var bals balances
	if err := call(http.MethodGet, fmt.Sprintf("%s/v1/balances/%s", url, address), nil, &bals); err != nil {
		return err
	}

	if len(bals.Balances) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), bals.Balances[0].Balance)
	}

	return nil
}

func balancesRun(cmd *cobra.Command, args []string) error {
	var bals balances
	if err := call(http.MethodGet, fmt.Sprintf("%s/v1/balances", url), nil, &bals); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "LatestBlock: %s  Uncommitted: %d\n\n", bals.LatestBlock, bals.Uncommitted)
	for _, bal := range bals.Balances {
		fmt.Fprintf(w, "Account: %s  Name: %s  Balance: %s\n", bal.Address, bal.Name, bal.Balance)
	}

	return nil
}
