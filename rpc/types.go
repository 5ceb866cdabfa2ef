package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"qugate/crypto"
	"qugate/native/gates"
	"qugate/services/journal"
)

// call is a dispatched request: its raw params and, for authenticated
// methods, the caller identity taken from the bearer token.
type call struct {
	params []json.RawMessage
	caller crypto.Identity
}

// decode unmarshals the single parameter object into dst. Methods without
// required fields accept an empty params list.
func (c *call) decode(dst any, required bool) *RPCError {
	switch len(c.params) {
	case 0:
		if required {
			return &RPCError{Code: codeInvalidParams, Message: "parameter object required"}
		}
		return nil
	case 1:
	default:
		return &RPCError{Code: codeInvalidParams, Message: "too many parameters"}
	}
	if err := json.Unmarshal(c.params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

// GateConfigParams is the wire form of a gate configuration. Identities are
// bech32 ("qu1...") or 0x-prefixed hex.
type GateConfigParams struct {
	Mode           string            `json:"mode,omitempty"`
	Recipients     []crypto.Identity `json:"recipients"`
	Ratios         []uint64          `json:"ratios,omitempty"`
	Threshold      uint64            `json:"threshold,omitempty"`
	AllowedSenders []crypto.Identity `json:"allowedSenders,omitempty"`
}

func (p GateConfigParams) config(mode gates.Mode) gates.Config {
	return gates.NewConfig(mode, p.Recipients, p.Ratios, p.Threshold, p.AllowedSenders)
}

type CreateGateParams struct {
	Paid uint64 `json:"paid"`
	GateConfigParams
}

type SendParams struct {
	GateID uint64 `json:"gateId"`
	Amount uint64 `json:"amount"`
}

type CloseParams struct {
	GateID uint64 `json:"gateId"`
	Reward uint64 `json:"reward,omitempty"`
}

type UpdateParams struct {
	GateID uint64 `json:"gateId"`
	Reward uint64 `json:"reward,omitempty"`
	GateConfigParams
}

type GateIDParams struct {
	GateID uint64 `json:"gateId"`
}

type EventsParams struct {
	GateID   uint64 `json:"gateId,omitempty"`
	Type     string `json:"type,omitempty"`
	AfterSeq uint64 `json:"afterSeq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type IdentityParams struct {
	Identity crypto.Identity `json:"identity"`
}

type LedgerSendParams struct {
	To     crypto.Identity `json:"to"`
	Amount uint64          `json:"amount"`
}

// StatusResult reports a gate procedure outcome. Status is the numeric code,
// StatusName its symbolic form.
type StatusResult struct {
	Status     int64  `json:"status"`
	StatusName string `json:"statusName"`
}

func statusResult(status gates.Status) StatusResult {
	return StatusResult{Status: int64(status), StatusName: status.String()}
}

type CreateGateResult struct {
	StatusResult
	GateID  uint64 `json:"gateId"`
	FeePaid uint64 `json:"feePaid"`
}

type GateResult struct {
	GateID            uint64            `json:"gateId"`
	Mode              string            `json:"mode"`
	Active            bool              `json:"active"`
	Owner             crypto.Identity   `json:"owner"`
	Recipients        []crypto.Identity `json:"recipients"`
	Ratios            []uint64          `json:"ratios,omitempty"`
	Threshold         uint64            `json:"threshold,omitempty"`
	CurrentBalance    uint64            `json:"currentBalance"`
	TotalReceived     uint64            `json:"totalReceived"`
	TotalForwarded    uint64            `json:"totalForwarded"`
	CreatedEpoch      uint16            `json:"createdEpoch"`
	LastActivityEpoch uint16            `json:"lastActivityEpoch"`
}

func gateResult(id uint64, info gates.GateInfo) GateResult {
	n := int(info.RecipientCount)
	if n > gates.MaxRecipients {
		n = gates.MaxRecipients
	}
	out := GateResult{
		GateID:            id,
		Mode:              info.Mode.String(),
		Active:            info.Active,
		Owner:             info.Owner,
		Recipients:        append([]crypto.Identity{}, info.Recipients[:n]...),
		Threshold:         info.Threshold,
		CurrentBalance:    info.CurrentBalance,
		TotalReceived:     info.TotalReceived,
		TotalForwarded:    info.TotalForwarded,
		CreatedEpoch:      info.CreatedEpoch,
		LastActivityEpoch: info.LastActivityEpoch,
	}
	if info.Mode == gates.ModeSplit {
		out.Ratios = append([]uint64{}, info.Ratios[:n]...)
	}
	return out
}

type CountResult struct {
	TotalGates  uint64 `json:"totalGates"`
	ActiveGates uint64 `json:"activeGates"`
	TotalBurned uint64 `json:"totalBurned"`
}

type FeesResult struct {
	CreationFee        uint64 `json:"creationFee"`
	CurrentCreationFee uint64 `json:"currentCreationFee"`
	MinSendAmount      uint64 `json:"minSendAmount"`
	ExpiryEpochs       uint64 `json:"expiryEpochs"`
}

type EventResult struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Time       string            `json:"time"`
}

func eventResults(records []journal.Record) ([]EventResult, error) {
	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			return nil, err
		}
		out = append(out, EventResult{
			Seq:        rec.Seq,
			Type:       evt.Type,
			Attributes: evt.Attributes,
			Time:       rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

type BalanceResult struct {
	Identity crypto.Identity `json:"identity"`
	Balance  uint64          `json:"balance"`
}

type EndEpochResult struct {
	Epoch   uint16   `json:"epoch"`
	Expired []uint64 `json:"expired"`
}

type NodeStatusResult struct {
	Epoch        uint16 `json:"epoch"`
	StateRoot    string `json:"stateRoot"`
	RegistryRoot string `json:"registryRoot"`
	Supply       uint64 `json:"supply"`
	Burned       uint64 `json:"burned"`
}

func hexRoot(root [32]byte) string {
	return fmt.Sprintf("0x%s", hex.EncodeToString(root[:]))
}
