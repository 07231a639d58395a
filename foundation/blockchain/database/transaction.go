package database

import (
	"fmt"
	"time"

	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
	"github.com/shopspring/decimal"
)

// Tx is the transactional information between two parties. Once constructed
// the transaction is identified by its content hash and never changes.
type Tx struct {
	From      string            `json:"sender"`         // Identity of the account sending value.
	To        string            `json:"recipient"`      // Identity of the account receiving value.
	Value     decimal.Decimal   `json:"amount"`         // Monetary value moved by this transaction.
	TimeStamp uint64            `json:"timestamp"`      // Unix milliseconds the transaction was created.
	Metadata  map[string]string `json:"metadata"`       // Free-form annotation, not part of the identity.
	ID        string            `json:"transaction_id"` // Content hash of the transaction.
}

// NewTx constructs a new transaction and computes its identity.
func NewTx(from string, to string, value decimal.Decimal, metadata map[string]string, now time.Time) (Tx, error) {
	tx := Tx{
		From:      from,
		To:        to,
		Value:     value,
		TimeStamp: uint64(now.UTC().UnixMilli()),
		Metadata:  copyMetadata(metadata),
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	tx.ID = tx.Hash()

	return tx, nil
}

// Validate checks the transaction represents a legal transfer of value.
func (tx Tx) Validate() error {
	if tx.From == "" {
		return fmt.Errorf("%w: sender is empty", ErrInvalidTransaction)
	}

	if tx.To == "" {
		return fmt.Errorf("%w: recipient is empty", ErrInvalidTransaction)
	}

	if tx.From == tx.To {
		return fmt.Errorf("%w: sending money to yourself, from %s, to %s", ErrInvalidTransaction, tx.From, tx.To)
	}

	if !tx.Value.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransaction, tx.Value)
	}

	return nil
}

// Hash returns the content hash of the transaction. The metadata is not
// part of the hash so a transaction can be annotated without changing
// its identity.
func (tx Tx) Hash() string {
	content := struct {
		From      string `json:"sender"`
		To        string `json:"recipient"`
		Value     string `json:"amount"`
		TimeStamp uint64 `json:"timestamp"`
	}{
		From:      tx.From,
		To:        tx.To,
		Value:     tx.Value.String(),
		TimeStamp: tx.TimeStamp,
	}

	return signature.Hash(content)
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", tx.ID, tx.From, tx.To, tx.Value)
}

// =============================================================================

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return map[string]string{}
	}

	cpy := make(map[string]string, len(metadata))
	for k, v := range metadata {
		cpy[k] = v
	}
	return cpy
}
