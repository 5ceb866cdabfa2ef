package gates

import (
	"errors"
	"fmt"
)

var (
	errInvalidSnapshot = errors.New("gates registry: invalid snapshot")
	errExpiryWindow    = errors.New("gates registry: expiry epochs exceed the 16-bit epoch window")
)

// Params are the fee and expiry parameters fixed when a registry is created.
type Params struct {
	CreationFee   uint64 `toml:"CreationFee" yaml:"creationFee"`
	MinSendAmount uint64 `toml:"MinSendAmount" yaml:"minSendAmount"`
	ExpiryEpochs  uint64 `toml:"ExpiryEpochs" yaml:"expiryEpochs"`
}

// DefaultParams returns the stock fee schedule.
func DefaultParams() Params {
	return Params{
		CreationFee:   DefaultCreationFee,
		MinSendAmount: DefaultMinSendAmount,
		ExpiryEpochs:  DefaultExpiryEpochs,
	}
}

// Validate rejects parameters the expiry arithmetic cannot honour. Epoch
// distances are computed modulo 2^16, so a longer window would never fire.
func (p Params) Validate() error {
	if p.ExpiryEpochs > 0xFFFF {
		return errExpiryWindow
	}
	return nil
}

// Registry is the fixed-capacity gate arena. Slots are addressed by index;
// external ids are index+1. Closed slots keep their contents until reused.
type Registry struct {
	params      Params
	gates       []Gate
	freeSlots   []uint64
	activeGates uint64
	totalBurned uint64
}

// NewRegistry returns an empty registry using params.
func NewRegistry(params Params) *Registry {
	return &Registry{params: params}
}

// Params returns the registry fee parameters.
func (r *Registry) Params() Params { return r.params }

// GateCount is the high-water mark of slots ever allocated.
func (r *Registry) GateCount() uint64 { return uint64(len(r.gates)) }

// ActiveGates is the number of gates currently active.
func (r *Registry) ActiveGates() uint64 { return r.activeGates }

// TotalBurned is the cumulative value destroyed by fees and dust.
func (r *Registry) TotalBurned() uint64 { return r.totalBurned }

// FreeSlots returns a copy of the reuse stack, bottom first.
func (r *Registry) FreeSlots() []uint64 {
	return append([]uint64(nil), r.freeSlots...)
}

// Gate returns a copy of the gate with the given 1-based id.
func (r *Registry) Gate(id uint64) (Gate, bool) {
	if !r.validID(id) {
		return Gate{}, false
	}
	return r.gates[id-1], true
}

func (r *Registry) validID(id uint64) bool {
	return id != 0 && id <= uint64(len(r.gates))
}

func (r *Registry) put(id uint64, gate Gate) {
	r.gates[id-1] = gate
}

func (r *Registry) full() bool {
	return len(r.freeSlots) == 0 && len(r.gates) >= MaxGates
}

// allocate stores gate in the most recently freed slot, or in a fresh slot
// past the high-water mark, and returns its 1-based id.
func (r *Registry) allocate(gate Gate) uint64 {
	if n := len(r.freeSlots); n > 0 {
		idx := r.freeSlots[n-1]
		r.freeSlots = r.freeSlots[:n-1]
		r.gates[idx] = gate
		r.activeGates++
		return idx + 1
	}
	r.gates = append(r.gates, gate)
	r.activeGates++
	return uint64(len(r.gates))
}

// release deactivates the gate and pushes its slot onto the reuse stack.
func (r *Registry) release(id uint64, gate Gate) {
	gate.Active = false
	r.gates[id-1] = gate
	r.activeGates--
	r.freeSlots = append(r.freeSlots, id-1)
}

func (r *Registry) burn(amount uint64) {
	r.totalBurned += amount
}

// Snapshot is the persisted form of a registry. Only allocated slots are kept.
type Snapshot struct {
	Params      Params
	ActiveGates uint64
	TotalBurned uint64
	FreeSlots   []uint64
	Gates       []Gate
}

// Snapshot returns a deep copy of the registry state.
func (r *Registry) Snapshot() *Snapshot {
	return &Snapshot{
		Params:      r.params,
		ActiveGates: r.activeGates,
		TotalBurned: r.totalBurned,
		FreeSlots:   append([]uint64(nil), r.freeSlots...),
		Gates:       append([]Gate(nil), r.gates...),
	}
}

// RestoreRegistry rebuilds a registry from a snapshot after checking that the
// free list, active count and gate records agree with each other.
func RestoreRegistry(snap *Snapshot) (*Registry, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", errInvalidSnapshot)
	}
	if err := snap.Params.Validate(); err != nil {
		return nil, err
	}
	if len(snap.Gates) > MaxGates {
		return nil, fmt.Errorf("%w: %d gates exceeds capacity", errInvalidSnapshot, len(snap.Gates))
	}
	var active uint64
	for i, gate := range snap.Gates {
		if !gate.Active {
			continue
		}
		if err := checkActiveGate(gate); err != nil {
			return nil, fmt.Errorf("%w: gate %d: %v", errInvalidSnapshot, i+1, err)
		}
		active++
	}
	if active != snap.ActiveGates {
		return nil, fmt.Errorf("%w: active count %d, found %d", errInvalidSnapshot, snap.ActiveGates, active)
	}
	if uint64(len(snap.FreeSlots)) != uint64(len(snap.Gates))-active {
		return nil, fmt.Errorf("%w: %d free slots for %d inactive gates", errInvalidSnapshot, len(snap.FreeSlots), uint64(len(snap.Gates))-active)
	}
	seen := make(map[uint64]struct{}, len(snap.FreeSlots))
	for _, idx := range snap.FreeSlots {
		if idx >= uint64(len(snap.Gates)) {
			return nil, fmt.Errorf("%w: free slot %d out of range", errInvalidSnapshot, idx)
		}
		if snap.Gates[idx].Active {
			return nil, fmt.Errorf("%w: free slot %d holds an active gate", errInvalidSnapshot, idx)
		}
		if _, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: free slot %d listed twice", errInvalidSnapshot, idx)
		}
		seen[idx] = struct{}{}
	}
	return &Registry{
		params:      snap.Params,
		gates:       append([]Gate(nil), snap.Gates...),
		freeSlots:   append([]uint64(nil), snap.FreeSlots...),
		activeGates: snap.ActiveGates,
		totalBurned: snap.TotalBurned,
	}, nil
}

func checkActiveGate(g Gate) error {
	if !g.Mode.Valid() {
		return fmt.Errorf("unknown mode %d", g.Mode)
	}
	if g.RecipientCount == 0 || g.RecipientCount > MaxRecipients {
		return fmt.Errorf("recipient count %d", g.RecipientCount)
	}
	if g.AllowedSenderCount > MaxRecipients {
		return fmt.Errorf("allowed sender count %d", g.AllowedSenderCount)
	}
	if g.Mode == ModeSplit {
		if status := validateRatios(g.Ratios, g.RecipientCount); !status.OK() {
			return fmt.Errorf("ratios: %s", status)
		}
	}
	if g.Mode == ModeThreshold && g.Threshold == 0 {
		return errors.New("zero threshold")
	}
	return nil
}
