// This program is a wallet for sending transactions to a node and
// inspecting the chain it holds.
package main

import "github.com/ardanlabs/chainengine/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
