package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
)

// Transactions writes the confirmed transactions, restricted to the address
// provided as the first argument.
func Transactions(w io.Writer, args []string, st *state.State) error {
	var acct string
	if len(args) == 1 {
		acct = args[0]
	}

	blocks, err := st.QueryChain()
	if err != nil {
		return err
	}

	for _, block := range blocks {
		for _, tx := range block.Trans {
			if acct != "" && acct != tx.From && acct != tx.To {
				continue
			}

			fmt.Fprintf(w, "Block: %d  ID: %s  From: %s  To: %s  Amount: %s  Metadata: %v\n",
				block.Index, tx.ID, tx.From, tx.To, tx.Value, tx.Metadata)
		}
	}

	return nil
}
