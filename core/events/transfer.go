package events

import (
	"qugate/core/types"
	"qugate/crypto"
)

const (
	// TypeTransfer is emitted for every ledger balance movement.
	TypeTransfer = "ledger.transfer"
	// TypeBurn is emitted when the host destroys value.
	TypeBurn = "ledger.burn"
)

// Transfer records value moving between two ledger identities. Invocation
// payments move from the caller to the contract account; forwards and refunds
// move out of it.
type Transfer struct {
	From   crypto.Identity
	To     crypto.Identity
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// Burn records value destroyed out of the contract account.
type Burn struct {
	Amount uint64
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() *types.Event {
	return &types.Event{
		Type:       TypeBurn,
		Attributes: map[string]string{"amount": formatAmount(e.Amount)},
	}
}
