package gates

import (
	"errors"

	"qugate/core/events"
	"qugate/core/types"
	"qugate/crypto"
)

var errNilHost = errors.New("gates engine: host not configured")

// Engine runs gate procedures against a registry inside a host. It assumes
// exclusive access: callers serialise invocations, and each procedure reads a
// gate by value, mutates the copy and writes it back whole.
type Engine struct {
	registry *Registry
	host     Host
	emitter  events.Emitter
}

// NewEngine binds a registry to the host that moves value on its behalf.
func NewEngine(registry *Registry, host Host) *Engine {
	if registry == nil {
		registry = NewRegistry(DefaultParams())
	}
	return &Engine{registry: registry, host: host, emitter: events.NoopEmitter{}}
}

// Registry exposes the registry the engine mutates.
func (e *Engine) Registry() *Registry { return e.registry }

// SetRegistry swaps the registry, e.g. after restoring a snapshot.
func (e *Engine) SetRegistry(registry *Registry) {
	if registry != nil {
		e.registry = registry
	}
}

// SetHost configures the execution environment.
func (e *Engine) SetHost(host Host) { e.host = host }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Ready reports whether the engine can run procedures.
func (e *Engine) Ready() error {
	if e == nil || e.host == nil {
		return errNilHost
	}
	return nil
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) refund(to crypto.Identity, amount uint64) {
	if amount > 0 {
		e.host.Transfer(to, amount)
	}
}

// CreateGate allocates a gate for creator, who attached paid. Checks run in a
// fixed order and the first failure wins; every failure returns the full
// payment. On success the escalated fee is burned and any excess refunded.
func (e *Engine) CreateGate(creator crypto.Identity, paid uint64, cfg Config) CreateResult {
	reg := e.registry
	fee := reg.CurrentCreationFee()
	if paid < fee {
		e.refund(creator, paid)
		return CreateResult{Status: StatusInsufficientFee}
	}
	status := StatusSuccess
	switch {
	case !cfg.Mode.Valid():
		status = StatusInvalidMode
	case !validateRecipientCount(cfg.RecipientCount).OK():
		status = StatusInvalidRecipientCount
	case reg.full():
		status = StatusNoFreeSlots
	default:
		if s := validateModeRules(cfg.Mode, cfg); !s.OK() {
			status = s
		} else if s := validateSenderCount(cfg.AllowedSenderCount); !s.OK() {
			status = s
		}
	}
	if !status.OK() {
		e.refund(creator, paid)
		return CreateResult{Status: status}
	}

	epoch := e.host.Epoch()
	gate := Gate{
		Owner:             creator,
		Mode:              cfg.Mode,
		Active:            true,
		CreatedEpoch:      epoch,
		LastActivityEpoch: epoch,
	}
	applyConfig(&gate, cfg)
	id := reg.allocate(gate)

	e.host.Burn(fee)
	reg.burn(fee)
	e.refund(creator, paid-fee)

	e.emit(GateCreatedEvent(id, creator, gate.Mode, fee, epoch))
	return CreateResult{Status: StatusSuccess, GateID: id, FeePaid: fee}
}

// SendToGate routes amount from sender through the gate's strategy.
func (e *Engine) SendToGate(sender crypto.Identity, id uint64, amount uint64) Status {
	reg := e.registry
	gate, ok := reg.Gate(id)
	if !ok {
		e.refund(sender, amount)
		return StatusInvalidGateID
	}
	if !gate.Active {
		e.refund(sender, amount)
		return StatusGateNotActive
	}
	if amount == 0 {
		return StatusDustAmount
	}
	if reg.isDust(amount) {
		e.host.Burn(amount)
		reg.burn(amount)
		e.emit(GateDustBurnedEvent(id, sender, amount))
		return StatusDustAmount
	}

	gate.LastActivityEpoch = e.host.Epoch()
	gate.TotalReceived += amount
	decide, ok := strategies[gate.Mode]
	if !ok {
		// Unreachable for gates created through CreateGate or a checked snapshot.
		e.refund(sender, amount)
		return StatusInvalidMode
	}
	out := decide(&gate, inbound{sender: sender, amount: amount, tick: e.host.Tick()})
	for _, p := range out.payouts {
		e.host.Transfer(p.To, p.Amount)
	}
	e.refund(sender, out.refund)
	reg.put(id, gate)

	if out.status == StatusConditionalRejected {
		e.emit(GateRejectedEvent(id, sender, amount))
	} else {
		e.emit(GateForwardedEvent(id, sender, amount, out.payouts, gate.CurrentBalance))
	}
	return out.status
}

// CloseGate deactivates a gate on behalf of its owner and refunds any held
// balance to the owner. The attached reward is always returned to the caller.
func (e *Engine) CloseGate(caller crypto.Identity, id uint64, reward uint64) Status {
	defer e.refund(caller, reward)

	reg := e.registry
	gate, ok := reg.Gate(id)
	if !ok {
		return StatusInvalidGateID
	}
	if gate.Owner != caller {
		return StatusUnauthorized
	}
	if !gate.Active {
		return StatusGateNotActive
	}
	refunded := gate.CurrentBalance
	if refunded > 0 {
		e.host.Transfer(gate.Owner, refunded)
		gate.CurrentBalance = 0
	}
	reg.release(id, gate)
	e.emit(GateClosedEvent(id, gate.Owner, refunded))
	return StatusSuccess
}

// UpdateGate replaces a gate's recipients, ratios, threshold and allowlist.
// The mode in cfg is ignored; constraints are checked against the existing
// mode. The round-robin cursor, held balance and counters are preserved. The
// attached reward is always returned to the caller.
func (e *Engine) UpdateGate(caller crypto.Identity, reward uint64, id uint64, cfg Config) Status {
	defer e.refund(caller, reward)

	reg := e.registry
	gate, ok := reg.Gate(id)
	if !ok {
		return StatusInvalidGateID
	}
	if gate.Owner != caller {
		return StatusUnauthorized
	}
	if !gate.Active {
		return StatusGateNotActive
	}
	if s := validateRecipientCount(cfg.RecipientCount); !s.OK() {
		return s
	}
	if s := validateSenderCount(cfg.AllowedSenderCount); !s.OK() {
		return s
	}
	if s := validateModeRules(gate.Mode, cfg); !s.OK() {
		return s
	}

	gate.LastActivityEpoch = e.host.Epoch()
	applyConfig(&gate, cfg)
	reg.put(id, gate)
	e.emit(GateUpdatedEvent(id, gate.Owner, gate.RecipientCount, gate.AllowedSenderCount))
	return StatusSuccess
}

// EndEpoch closes every active gate idle for at least the expiry window,
// refunding held balances to owners. It returns the ids it closed.
func (e *Engine) EndEpoch() []uint64 {
	reg := e.registry
	now := e.host.Epoch()
	var closed []uint64
	for id := uint64(1); id <= reg.GateCount(); id++ {
		gate := reg.gates[id-1]
		if !gate.Active || !reg.expired(gate.LastActivityEpoch, now) {
			continue
		}
		refunded := gate.CurrentBalance
		if refunded > 0 {
			e.host.Transfer(gate.Owner, refunded)
			gate.CurrentBalance = 0
		}
		reg.release(id, gate)
		closed = append(closed, id)
		e.emit(GateExpiredEvent(id, gate.Owner, refunded, now))
	}
	return closed
}

// GetGate returns the public view of a gate. Unknown ids yield the zero view,
// which reads as inactive.
func (e *Engine) GetGate(id uint64) GateInfo {
	gate, ok := e.registry.Gate(id)
	if !ok {
		return GateInfo{}
	}
	return gate.Info()
}

// GetGateCount returns the registry counters.
func (e *Engine) GetGateCount() Counts {
	reg := e.registry
	return Counts{
		TotalGates:  reg.GateCount(),
		ActiveGates: reg.ActiveGates(),
		TotalBurned: reg.TotalBurned(),
	}
}

// GetFees returns the fee schedule and the fee a creation would pay now.
func (e *Engine) GetFees() Fees {
	params := e.registry.Params()
	return Fees{
		CreationFee:        params.CreationFee,
		CurrentCreationFee: e.registry.CurrentCreationFee(),
		MinSendAmount:      params.MinSendAmount,
		ExpiryEpochs:       params.ExpiryEpochs,
	}
}
