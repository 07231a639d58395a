package state

import (
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
)

// BlockSummary is the view of a block returned to callers.
type BlockSummary struct {
	Index        uint64         `json:"index"`
	Hash         string         `json:"hash"`
	PreviousHash string         `json:"previous_hash"`
	TimeStamp    uint64         `json:"timestamp"`
	Nonce        uint64         `json:"nonce"`
	Difficulty   float64        `json:"difficulty"`
	Proof        database.Proof `json:"proof"`
	Trans        []database.Tx  `json:"transactions"`
}

// NewBlockSummary constructs the summary of the block.
func NewBlockSummary(block database.Block) BlockSummary {
	trans := block.Trans
	if trans == nil {
		trans = []database.Tx{}
	}

	return BlockSummary{
		Index:        block.Header.Number,
		Hash:         block.SealedHash(),
		PreviousHash: block.Header.PrevBlockHash,
		TimeStamp:    block.Header.TimeStamp,
		Nonce:        block.Header.Nonce,
		Difficulty:   block.Header.Difficulty,
		Proof:        block.Header.Proof,
		Trans:        trans,
	}
}

// Validation is the result of replaying the chain.
type Validation struct {
	Valid             bool   `json:"valid"`
	FirstInvalidIndex uint64 `json:"first_invalid_index,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Status is the current state of the engine.
type Status struct {
	ChainLength      uint64   `json:"chain_length"`
	TipHash          string   `json:"tip_hash"`
	PendingCount     int      `json:"pending_count"`
	Difficulty       float64  `json:"difficulty"`
	Level            float64  `json:"level"`
	Threshold        float64  `json:"threshold"`
	ConsensusKind    string   `json:"consensus_kind"`
	Authorities      []string `json:"authorities,omitempty"`
	CurrentAuthority string   `json:"current_authority,omitempty"`
}
