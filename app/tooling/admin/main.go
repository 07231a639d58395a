// This program performs administrative tasks against the blocks stored
// on disk by a node. The node should not be running.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ardanlabs/chainengine/app/tooling/admin/commands"
	"github.com/ardanlabs/chainengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
	"github.com/ardanlabs/chainengine/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/chainengine/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

var (
	dbPath      string
	genesisPath string
	consensus   string
)

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN", "stderr")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	rootCmd := cobra.Command{
		Use:           "admin",
		Short:         "Administrative tasks over the stored chain",
		Version:       build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "zblock/blocks", "Path to the block storage.")
	rootCmd.PersistentFlags().StringVar(&genesisPath, "genesis", "zblock/genesis.json", "Path to the genesis file.")
	rootCmd.PersistentFlags().StringVarP(&consensus, "consensus", "c", "pow", "Consensus kind the chain was built with.")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "bals [address]",
		Short: "Print the confirmed balances.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open(log)
			if err != nil {
				return err
			}
			defer st.Shutdown()

			return commands.Balances(cmd.OutOrStdout(), args, st)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "trans [address]",
		Short: "Print the confirmed transactions.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open(log)
			if err != nil {
				return err
			}
			defer st.Shutdown()

			return commands.Transactions(cmd.OutOrStdout(), args, st)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Replay the chain from genesis.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open(log)
			if err != nil {
				return err
			}
			defer st.Shutdown()

			return commands.Validate(cmd.OutOrStdout(), st)
		},
	})

	return rootCmd.Execute()
}

// open loads the stored chain. Loading replays the chain, so a tampered
// chain fails here with the first invalid block.
func open(log *zap.SugaredLogger) (*state.State, error) {
	gen, err := genesis.Load(genesisPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		gen = genesis.Default()
	case err != nil:
		return nil, fmt.Errorf("unable to load genesis file: %w", err)
	}

	storage, err := disk.New(dbPath)
	if err != nil {
		return nil, err
	}

	st, err := state.New(state.Config{
		Genesis:   gen,
		Storage:   storage,
		Consensus: consensus,
		EvHandler: func(v string, args ...any) {
			log.Debugf(v, args...)
		},
	})
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("loading chain: %w", err)
	}

	return st, nil
}
