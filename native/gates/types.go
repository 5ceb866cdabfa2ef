package gates

import (
	"fmt"
	"strconv"
	"strings"

	"qugate/crypto"
)

const (
	// MaxGates is the fixed slot capacity of a registry.
	MaxGates = 4096
	// MaxRecipients bounds both the recipient list and the sender allowlist.
	MaxRecipients = 8
	// MaxRatio is the largest weight accepted for a single Split recipient.
	MaxRatio = 10000
	// FeeEscalationStep is the number of active gates per creation fee step.
	FeeEscalationStep = 1024

	DefaultCreationFee   = 1000
	DefaultMinSendAmount = 10
	DefaultExpiryEpochs  = 50
)

// Mode selects the distribution strategy of a gate. It is fixed at creation.
type Mode uint8

const (
	ModeSplit Mode = iota
	ModeRoundRobin
	ModeThreshold
	ModeRandom
	ModeConditional
)

var modeNames = map[Mode]string{
	ModeSplit:       "split",
	ModeRoundRobin:  "round_robin",
	ModeThreshold:   "threshold",
	ModeRandom:      "random",
	ModeConditional: "conditional",
}

// Valid reports whether m is one of the five known modes.
func (m Mode) Valid() bool { return m <= ModeConditional }

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts a mode name ("split", "round-robin", ...) or its numeric value.
func ParseMode(raw string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for mode, name := range modeNames {
		if name == normalized || strings.ReplaceAll(name, "_", "") == normalized {
			return mode, nil
		}
	}
	if n, err := strconv.ParseUint(normalized, 10, 8); err == nil {
		return Mode(n), nil
	}
	return 0, fmt.Errorf("gates: unknown mode %q", raw)
}

// Status is the closed set of procedure outcomes. Every procedure reports one;
// none of them panics or returns an error for a rejected request.
type Status int64

const (
	StatusSuccess               Status = 0
	StatusInvalidGateID         Status = -1
	StatusGateNotActive         Status = -2
	StatusUnauthorized          Status = -3
	StatusInvalidMode           Status = -4
	StatusInvalidRecipientCount Status = -5
	StatusInvalidRatio          Status = -6
	StatusInsufficientFee       Status = -7
	StatusNoFreeSlots           Status = -8
	StatusDustAmount            Status = -9
	StatusInvalidThreshold      Status = -10
	StatusInvalidSenderCount    Status = -11
	StatusConditionalRejected   Status = -12
)

var statusNames = map[Status]string{
	StatusSuccess:               "success",
	StatusInvalidGateID:         "invalid_gate_id",
	StatusGateNotActive:         "gate_not_active",
	StatusUnauthorized:          "unauthorized",
	StatusInvalidMode:           "invalid_mode",
	StatusInvalidRecipientCount: "invalid_recipient_count",
	StatusInvalidRatio:          "invalid_ratio",
	StatusInsufficientFee:       "insufficient_fee",
	StatusNoFreeSlots:           "no_free_slots",
	StatusDustAmount:            "dust_amount",
	StatusInvalidThreshold:      "invalid_threshold",
	StatusInvalidSenderCount:    "invalid_sender_count",
	StatusConditionalRejected:   "conditional_rejected",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int64(s))
}

// OK reports whether the status is StatusSuccess.
func (s Status) OK() bool { return s == StatusSuccess }

// Gate is one registry slot. Mode-specific fields are stored flat: Ratios only
// matter for Split, AllowedSenders for Conditional, Threshold for Threshold and
// RoundRobinIndex for RoundRobin. Entries past the declared counts are zero.
type Gate struct {
	Owner              crypto.Identity
	Mode               Mode
	RecipientCount     uint8
	Active             bool
	AllowedSenderCount uint8
	CreatedEpoch       uint16
	LastActivityEpoch  uint16
	TotalReceived      uint64
	TotalForwarded     uint64
	CurrentBalance     uint64
	Threshold          uint64
	RoundRobinIndex    uint64
	Recipients         [MaxRecipients]crypto.Identity
	Ratios             [MaxRecipients]uint64
	AllowedSenders     [MaxRecipients]crypto.Identity
}

// ActiveRecipients returns the declared recipients.
func (g Gate) ActiveRecipients() []crypto.Identity {
	n := int(g.RecipientCount)
	if n > MaxRecipients {
		n = MaxRecipients
	}
	return append([]crypto.Identity(nil), g.Recipients[:n]...)
}

// Allows reports whether sender is on the Conditional allowlist.
func (g Gate) Allows(sender crypto.Identity) bool {
	n := int(g.AllowedSenderCount)
	if n > MaxRecipients {
		n = MaxRecipients
	}
	for i := 0; i < n; i++ {
		if g.AllowedSenders[i] == sender {
			return true
		}
	}
	return false
}

// Config carries the caller-supplied gate configuration for create and update.
// Mode is ignored by update because a gate's mode never changes.
type Config struct {
	Mode               Mode
	RecipientCount     uint8
	Recipients         [MaxRecipients]crypto.Identity
	Ratios             [MaxRecipients]uint64
	Threshold          uint64
	AllowedSenders     [MaxRecipients]crypto.Identity
	AllowedSenderCount uint8
}

// NewConfig builds a Config from slices, truncating anything beyond
// MaxRecipients. The declared counts are the slice lengths, so oversized input
// is still rejected by validation.
func NewConfig(mode Mode, recipients []crypto.Identity, ratios []uint64, threshold uint64, allowed []crypto.Identity) Config {
	cfg := Config{Mode: mode, Threshold: threshold}
	cfg.RecipientCount = clampCount(len(recipients))
	cfg.AllowedSenderCount = clampCount(len(allowed))
	copy(cfg.Recipients[:], recipients)
	copy(cfg.Ratios[:], ratios)
	copy(cfg.AllowedSenders[:], allowed)
	return cfg
}

func clampCount(n int) uint8 {
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// CreateResult is the outcome of CreateGate. GateID is 1-based and zero on failure.
type CreateResult struct {
	Status  Status
	GateID  uint64
	FeePaid uint64
}

// GateInfo is the public read view of a gate.
type GateInfo struct {
	Mode              Mode
	RecipientCount    uint8
	Active            bool
	Owner             crypto.Identity
	TotalReceived     uint64
	TotalForwarded    uint64
	CurrentBalance    uint64
	Threshold         uint64
	CreatedEpoch      uint16
	LastActivityEpoch uint16
	Recipients        [MaxRecipients]crypto.Identity
	Ratios            [MaxRecipients]uint64
}

// Info projects the gate onto its public read view.
func (g Gate) Info() GateInfo {
	return GateInfo{
		Mode:              g.Mode,
		RecipientCount:    g.RecipientCount,
		Active:            g.Active,
		Owner:             g.Owner,
		TotalReceived:     g.TotalReceived,
		TotalForwarded:    g.TotalForwarded,
		CurrentBalance:    g.CurrentBalance,
		Threshold:         g.Threshold,
		CreatedEpoch:      g.CreatedEpoch,
		LastActivityEpoch: g.LastActivityEpoch,
		Recipients:        g.Recipients,
		Ratios:            g.Ratios,
	}
}

// Counts mirrors getGateCount.
type Counts struct {
	TotalGates  uint64
	ActiveGates uint64
	TotalBurned uint64
}

// Fees mirrors getFees.
type Fees struct {
	CreationFee        uint64
	CurrentCreationFee uint64
	MinSendAmount      uint64
	ExpiryEpochs       uint64
}

// Host is the execution environment a gate engine runs inside. Transfers and
// burns draw on value the host already collected from the invoking caller.
type Host interface {
	Epoch() uint16
	Tick() uint64
	Transfer(to crypto.Identity, amount uint64)
	Burn(amount uint64)
}
