package gates

import (
	"strconv"

	"qugate/core/events"
	"qugate/core/types"
	"qugate/crypto"
)

const (
	// EventTypeGateCreated is emitted when a gate is allocated.
	EventTypeGateCreated = "gate.created"
	// EventTypeGateForwarded is emitted for every accepted send.
	EventTypeGateForwarded = "gate.forwarded"
	// EventTypeGateDustBurned is emitted when a send under the minimum is burned.
	EventTypeGateDustBurned = "gate.dust_burned"
	// EventTypeGateRejected is emitted when a Conditional gate bounces a sender.
	EventTypeGateRejected = "gate.conditional_rejected"
	// EventTypeGateUpdated is emitted when an owner replaces a gate configuration.
	EventTypeGateUpdated = "gate.updated"
	// EventTypeGateClosed is emitted when an owner closes a gate.
	EventTypeGateClosed = "gate.closed"
	// EventTypeGateExpired is emitted when epoch expiry closes an idle gate.
	EventTypeGateExpired = "gate.expired"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// GateCreatedEvent announces a new gate and the fee that was burned for it.
func GateCreatedEvent(id uint64, owner crypto.Identity, mode Mode, fee uint64, epoch uint16) *types.Event {
	return &types.Event{
		Type: EventTypeGateCreated,
		Attributes: map[string]string{
			"gateId": formatID(id),
			"owner":  owner.String(),
			"mode":   mode.String(),
			"fee":    formatUint(fee),
			"epoch":  formatUint(uint64(epoch)),
		},
	}
}

// GateForwardedEvent captures an accepted send. Payouts are flattened into
// indexed attributes (to.0, amount.0, ...) so the payload stays a flat map.
func GateForwardedEvent(id uint64, sender crypto.Identity, amount uint64, payouts []Payout, held uint64) *types.Event {
	attrs := map[string]string{
		"gateId":  formatID(id),
		"sender":  sender.String(),
		"amount":  formatUint(amount),
		"payouts": strconv.Itoa(len(payouts)),
		"held":    formatUint(held),
	}
	for i, p := range payouts {
		idx := strconv.Itoa(i)
		attrs["to."+idx] = p.To.String()
		attrs["amount."+idx] = formatUint(p.Amount)
	}
	return &types.Event{Type: EventTypeGateForwarded, Attributes: attrs}
}

// GateDustBurnedEvent captures a below-minimum send that was destroyed.
func GateDustBurnedEvent(id uint64, sender crypto.Identity, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeGateDustBurned,
		Attributes: map[string]string{
			"gateId": formatID(id),
			"sender": sender.String(),
			"amount": formatUint(amount),
		},
	}
}

// GateRejectedEvent captures a Conditional bounce back to the sender.
func GateRejectedEvent(id uint64, sender crypto.Identity, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeGateRejected,
		Attributes: map[string]string{
			"gateId": formatID(id),
			"sender": sender.String(),
			"amount": formatUint(amount),
		},
	}
}

// GateUpdatedEvent captures a configuration replacement.
func GateUpdatedEvent(id uint64, owner crypto.Identity, recipients uint8, allowed uint8) *types.Event {
	return &types.Event{
		Type: EventTypeGateUpdated,
		Attributes: map[string]string{
			"gateId":         formatID(id),
			"owner":          owner.String(),
			"recipients":     strconv.Itoa(int(recipients)),
			"allowedSenders": strconv.Itoa(int(allowed)),
		},
	}
}

// GateClosedEvent captures an owner close and the balance refunded with it.
func GateClosedEvent(id uint64, owner crypto.Identity, refunded uint64) *types.Event {
	return &types.Event{
		Type: EventTypeGateClosed,
		Attributes: map[string]string{
			"gateId":   formatID(id),
			"owner":    owner.String(),
			"refunded": formatUint(refunded),
		},
	}
}

// GateExpiredEvent captures an expiry close at epoch.
func GateExpiredEvent(id uint64, owner crypto.Identity, refunded uint64, epoch uint16) *types.Event {
	return &types.Event{
		Type: EventTypeGateExpired,
		Attributes: map[string]string{
			"gateId":   formatID(id),
			"owner":    owner.String(),
			"refunded": formatUint(refunded),
			"epoch":    formatUint(uint64(epoch)),
		},
	}
}
