package public

import (
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/shopspring/decimal"
)

// NewTx is what a client submits to move value between accounts. Sender and
// recipient can be account identities or names known to the name service.
type NewTx struct {
	Sender    string            `json:"sender" validate:"required"`
	Recipient string            `json:"recipient" validate:"required,nefield=Sender"`
	Amount    string            `json:"amount" validate:"required,numeric"`
	Metadata  map[string]string `json:"metadata"`
}

type txSubmitted struct {
	Status string `json:"status"`
	ID     string `json:"transaction_id"`
}

type tx struct {
	ID            string            `json:"transaction_id"`
	Sender        string            `json:"sender"`
	SenderName    string            `json:"sender_name"`
	Recipient     string            `json:"recipient"`
	RecipientName string            `json:"recipient_name"`
	Amount        decimal.Decimal   `json:"amount"`
	TimeStamp     uint64            `json:"timestamp"`
	Metadata      map[string]string `json:"metadata"`
}

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

func (h Handlers) toTx(tran database.Tx) tx {
	return tx{
		ID:            tran.ID,
		Sender:        tran.From,
		SenderName:    h.NS.Lookup(tran.From),
		Recipient:     tran.To,
		RecipientName: h.NS.Lookup(tran.To),
		Amount:        tran.Value,
		TimeStamp:     tran.TimeStamp,
		Metadata:      tran.Metadata,
	}
}
