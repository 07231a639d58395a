// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the authority identities.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/chainengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of identities for name lookup.
type NameService struct {
	names map[string]string
	ids   map[string]string
}

// New constructs a name service with identities from the key files
// found under root.
func New(root string) (*NameService, error) {
	ns := NameService{
		names: make(map[string]string),
		ids:   make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		id := signature.PublicKeyToID(privateKey.PublicKey)
		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		ns.names[id] = name
		ns.ids[name] = id

		return nil
	}

	// A node without a key folder runs with raw identities only.
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return &ns, nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified identity.
func (ns *NameService) Lookup(id string) string {
	name, exists := ns.names[id]
	if !exists {
		return id
	}
	return name
}

// Resolve returns the identity for the specified name. Anything that is not
// a known name is returned as is.
func (ns *NameService) Resolve(name string) string {
	id, exists := ns.ids[name]
	if !exists {
		return name
	}
	return id
}

// Copy returns a copy of the map of identities and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.names))
	for id, name := range ns.names {
		cpy[id] = name
	}
	return cpy
}
