package gates

import "github.com/holiman/uint256"

// EscalatedFee returns the creation fee charged while activeGates gates are
// active: base × (1 + activeGates / FeeEscalationStep). The result saturates
// at the largest uint64 instead of wrapping.
func EscalatedFee(base, activeGates uint64) uint64 {
	multiplier := uint256.NewInt(activeGates / FeeEscalationStep)
	multiplier.AddUint64(multiplier, 1)
	fee, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(base), multiplier)
	if overflow || !fee.IsUint64() {
		return ^uint64(0)
	}
	return fee.Uint64()
}

// CurrentCreationFee is the fee a CreateGate call would be charged right now.
func (r *Registry) CurrentCreationFee() uint64 {
	return EscalatedFee(r.params.CreationFee, r.activeGates)
}

// isDust reports whether a non-zero send falls under the minimum and must be
// burned rather than forwarded.
func (r *Registry) isDust(amount uint64) bool {
	return amount < r.params.MinSendAmount
}

// expired reports whether a gate idle since lastActivity has outlived the
// expiry window at epoch now. The distance wraps at 16 bits, so epochs must be
// monotonic within one wraparound.
func (r *Registry) expired(lastActivity, now uint16) bool {
	if r.params.ExpiryEpochs == 0 {
		return false
	}
	return uint64(now-lastActivity) >= r.params.ExpiryEpochs
}
