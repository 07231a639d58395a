// Package commands contains the functionality for the admin tasks.
package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
)

// Balances writes the confirmed balances, or the balance of the address
// provided as the first argument.
func Balances(w io.Writer, args []string, st *state.State) error {
	status := st.QueryStatus()
	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", status.TipHash)

	bals, err := st.QueryConfirmedBalances()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		fmt.Fprintf(w, "Account: %s  Balance: %s\n", args[0], bals[args[0]])
		return nil
	}

	accounts := make([]string, 0, len(bals))
	for account := range bals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		fmt.Fprintf(w, "Account: %s  Balance: %s\n", account, bals[account])
	}

	return nil
}

// Validate replays the chain and reports the first invalid block.
func Validate(w io.Writer, st *state.State) error {
	v := st.ValidateChain()
	if !v.Valid {
		return fmt.Errorf("chain invalid at block %d: %s", v.FirstInvalidIndex, v.Reason)
	}

	fmt.Fprintf(w, "chain valid: blocks[%d]\n", st.QueryStatus().ChainLength)
	return nil
}
