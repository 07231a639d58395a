package state

import (
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// SubmitTransaction constructs the transaction and adds it to the mempool.
// The transaction id is returned.
func (s *State) SubmitTransaction(from string, to string, value decimal.Decimal, metadata map[string]string) (string, error) {
	tx, err := database.NewTx(from, to, value, metadata, s.clock.Now())
	if err != nil {
		return "", err
	}

	if err := s.UpsertTransaction(tx); err != nil {
		return "", err
	}

	return tx.ID, nil
}

// UpsertTransaction accepts an already constructed transaction for inclusion.
func (s *State) UpsertTransaction(tx database.Tx) error {
	s.mu.Lock()
	n, err := s.mempool.Submit(tx)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.evHandler("state: UpsertTransaction: tx[%s]: pending[%d]", tx, n)
	s.evHandler(`viewer: tx: {"id":%q,"sender":%q,"recipient":%q,"amount":%q}`, tx.ID, tx.From, tx.To, tx.Value)

	if s.Worker != nil {
		s.Worker.SignalStartProposing()
	}

	return nil
}
