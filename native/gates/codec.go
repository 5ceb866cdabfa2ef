package gates

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"
)

// SnapshotVersion tags the encoding produced by EncodeSnapshot.
const SnapshotVersion uint64 = 1

var errSnapshotVersion = errors.New("gates codec: unsupported snapshot version")

type snapshotEnvelope struct {
	Version  uint64
	Snapshot Snapshot
}

// EncodeSnapshot serialises a snapshot with RLP.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", errInvalidSnapshot)
	}
	return rlp.EncodeToBytes(&snapshotEnvelope{Version: SnapshotVersion, Snapshot: *snap})
}

// DecodeSnapshot parses bytes produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var env snapshotEnvelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, fmt.Errorf("gates codec: decode snapshot: %w", err)
	}
	if env.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", errSnapshotVersion, env.Version)
	}
	return &env.Snapshot, nil
}

// StateRoot is the BLAKE3 digest of the encoded registry snapshot. Two
// registries share a root exactly when their persisted state is identical.
func (r *Registry) StateRoot() ([32]byte, error) {
	encoded, err := EncodeSnapshot(r.Snapshot())
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}
