package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"qugate/core/ledger"
	"qugate/native/gates"
	"qugate/storage"
)

var (
	stateKey = []byte("qugate/state/v1")

	errStateCorrupt = errors.New("node state: corrupt")
)

// persistedState is everything a node needs to resume: the clock, the ledger
// and the gate registry. It is written as one record so a crash never leaves
// the ledger and registry out of step. Gates holds the versioned encoding
// from gates.EncodeSnapshot.
type persistedState struct {
	Epoch  uint16
	Tick   uint64
	Ledger ledger.Snapshot
	Gates  []byte
}

func encodeState(st *persistedState) ([]byte, error) {
	return rlp.EncodeToBytes(st)
}

func decodeState(data []byte) (*persistedState, error) {
	var st persistedState
	if err := rlp.DecodeBytes(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", errStateCorrupt, err)
	}
	return &st, nil
}

// loadState returns the persisted state, or nil when the database is fresh.
func loadState(db storage.Database) (*persistedState, error) {
	raw, err := db.Get(stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node state: %w", err)
	}
	return decodeState(raw)
}

// restore rebuilds the ledger and registry and checks that the contract
// account holds exactly the balances parked in active gates.
func (st *persistedState) restore() (*ledger.Ledger, *gates.Registry, error) {
	l, err := ledger.Restore(&st.Ledger)
	if err != nil {
		return nil, nil, err
	}
	snap, err := gates.DecodeSnapshot(st.Gates)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errStateCorrupt, err)
	}
	reg, err := gates.RestoreRegistry(snap)
	if err != nil {
		return nil, nil, err
	}
	if held := heldBalance(reg); held != l.Balance(ledger.ContractAccount) {
		return nil, nil, fmt.Errorf("%w: gates hold %d, contract account %d", errStateCorrupt, held, l.Balance(ledger.ContractAccount))
	}
	return l, reg, nil
}

func heldBalance(reg *gates.Registry) uint64 {
	var held uint64
	for id := uint64(1); id <= reg.GateCount(); id++ {
		if gate, ok := reg.Gate(id); ok && gate.Active {
			held += gate.CurrentBalance
		}
	}
	return held
}

// stateRoot commits to the full node state, not only the registry.
func stateRoot(st *persistedState) ([32]byte, error) {
	encoded, err := encodeState(st)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}
