package database

import (
	"fmt"

	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
)

// Proof kinds recorded by the different consensus strategies.
const (
	ProofGenesis   = "genesis"
	ProofAuthority = "poa"
	ProofValue     = "pov"
	ProofWork      = "pow"
	ProofGeometric = "geo"
)

// Proof is the strategy specific payload that authorizes the admission of a
// block. Only the fields related to the kind are populated.
type Proof struct {
	Kind        string    `json:"kind"`
	Authority   string    `json:"authority,omitempty"`   // Authority rotation: the signing authority.
	Solver      string    `json:"solver,omitempty"`      // Weighted selection: the winning solver.
	Score       float64   `json:"score,omitempty"`       // Weighted selection: score of the winner.
	Value       float64   `json:"value,omitempty"`       // Weighted selection: total value of the winner.
	Reputation  float64   `json:"reputation,omitempty"`  // Weighted selection: solver reputation at selection.
	Originality float64   `json:"originality,omitempty"` // Weighted selection: originality of the solution.
	Hash        string    `json:"hash,omitempty"`        // Search puzzles: the hash that solved the puzzle.
	Coordinates []float64 `json:"coordinates,omitempty"` // Geometric puzzle: the 8 dimensional point.
}

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64  `json:"index"`         // Block number in the chain, genesis is 0.
	TimeStamp     uint64  `json:"timestamp"`     // Unix milliseconds the block was created.
	PrevBlockHash string  `json:"previous_hash"` // Hash of the previous block in the chain.
	Nonce         uint64  `json:"nonce"`         // Counter used by the search based proofs.
	Difficulty    float64 `json:"difficulty"`    // Difficulty level or value threshold at creation.
	Proof         Proof   `json:"proof"`         // Strategy specific admission payload.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  []Tx
	hash   string
}

// NewBlock constructs an unsealed block.
func NewBlock(number uint64, timeStamp uint64, trans []Tx, prevBlockHash string) Block {
	cpy := make([]Tx, len(trans))
	copy(cpy, trans)

	return Block{
		Header: BlockHeader{
			Number:        number,
			TimeStamp:     timeStamp,
			PrevBlockHash: prevBlockHash,
		},
		Trans: cpy,
	}
}

// Seal computes and stores the content hash of the block.
func (b *Block) Seal() {
	b.hash = b.Hash()
}

// SealedHash returns the hash stored when the block was sealed.
func (b Block) SealedHash() string {
	return b.hash
}

// Hash recomputes the content hash of the block. The proof and difficulty
// are not part of the hash so a proof can be attached or searched for
// without hashing the transactions again.
func (b Block) Hash() string {
	return b.Hasher()(b.Header.Nonce)
}

// Hasher returns a function that hashes the block for any nonce. The
// transaction hashes are computed once, making this the function to use
// inside a search loop.
func (b Block) Hasher() func(nonce uint64) string {
	transHashes := make([]string, len(b.Trans))
	for i, tx := range b.Trans {
		transHashes[i] = tx.Hash()
	}

	content := struct {
		Number        uint64   `json:"index"`
		TimeStamp     uint64   `json:"timestamp"`
		TransHashes   []string `json:"transactions"`
		PrevBlockHash string   `json:"previous_hash"`
		Nonce         uint64   `json:"nonce"`
	}{
		Number:        b.Header.Number,
		TimeStamp:     b.Header.TimeStamp,
		TransHashes:   transHashes,
		PrevBlockHash: b.Header.PrevBlockHash,
	}

	return func(nonce uint64) string {
		content.Nonce = nonce
		return signature.Hash(content)
	}
}

// Verify checks the stored hash and the transaction identities still match
// the contents of the block.
func (b Block) Verify() error {
	for i, tx := range b.Trans {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}

		if hash := tx.Hash(); tx.ID != hash {
			return fmt.Errorf("%w: tx[%d] id %s, computed %s", ErrInvalidHash, i, tx.ID, hash)
		}
	}

	if hash := b.Hash(); b.hash != hash {
		return fmt.Errorf("%w: stored %s, computed %s", ErrInvalidHash, b.hash, hash)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("%d:%s", b.Header.Number, b.hash)
}

// =============================================================================

// BlockData represents what is serialized to disk and over the network.
type BlockData struct {
	Number        uint64  `json:"index"`
	TimeStamp     uint64  `json:"timestamp"`
	Trans         []Tx    `json:"transactions"`
	PrevBlockHash string  `json:"previous_hash"`
	Nonce         uint64  `json:"nonce"`
	Hash          string  `json:"hash"`
	Proof         Proof   `json:"proof"`
	Difficulty    float64 `json:"difficulty"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	trans := block.Trans
	if trans == nil {
		trans = []Tx{}
	}

	return BlockData{
		Number:        block.Header.Number,
		TimeStamp:     block.Header.TimeStamp,
		Trans:         trans,
		PrevBlockHash: block.Header.PrevBlockHash,
		Nonce:         block.Header.Nonce,
		Hash:          block.hash,
		Proof:         block.Header.Proof,
		Difficulty:    block.Header.Difficulty,
	}
}

// ToBlock converts the serialized form back into a block. The stored hash
// is kept as the seal so validation can detect any changed content.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: BlockHeader{
			Number:        blockData.Number,
			TimeStamp:     blockData.TimeStamp,
			PrevBlockHash: blockData.PrevBlockHash,
			Nonce:         blockData.Nonce,
			Difficulty:    blockData.Difficulty,
			Proof:         blockData.Proof,
		},
		Trans: blockData.Trans,
		hash:  blockData.Hash,
	}
}
