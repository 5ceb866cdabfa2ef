package events

import (
	"strconv"

	"qugate/core/types"
)

const (
	EventEpochAdvanced = "epoch.advanced"
)

// EpochAdvanced signals that the node crossed an epoch boundary and ran gate
// expiry for the new epoch.
type EpochAdvanced struct {
	Epoch   uint16
	Expired int
}

// EventType implements the Event interface.
func (EpochAdvanced) EventType() string { return EventEpochAdvanced }

// Event converts the struct into a types.Event payload.
func (e EpochAdvanced) Event() *types.Event {
	return &types.Event{
		Type: EventEpochAdvanced,
		Attributes: map[string]string{
			"epoch":   formatEpoch(e.Epoch),
			"expired": strconv.Itoa(e.Expired),
		},
	}
}
