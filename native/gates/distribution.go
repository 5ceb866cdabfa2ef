package gates

import (
	"github.com/holiman/uint256"

	"qugate/crypto"
)

// Payout is a single forward of value to a recipient.
type Payout struct {
	To     crypto.Identity
	Amount uint64
}

// inbound describes a send that already passed the id, activity and dust checks.
type inbound struct {
	sender crypto.Identity
	amount uint64
	tick   uint64
}

// decision is what a strategy wants the host to do with an inbound amount.
// Refund is returned to the sender; Payouts go to recipients.
type decision struct {
	payouts []Payout
	refund  uint64
	status  Status
}

func (d decision) forwarded() uint64 {
	var total uint64
	for _, p := range d.payouts {
		total += p.Amount
	}
	return total
}

type strategy func(g *Gate, in inbound) decision

var strategies = map[Mode]strategy{
	ModeSplit:       distributeSplit,
	ModeRoundRobin:  distributeRoundRobin,
	ModeThreshold:   distributeThreshold,
	ModeRandom:      distributeRandom,
	ModeConditional: distributeConditional,
}

// SplitShares divides amount proportionally to ratios. Every share but the
// last is floor(amount×ratio/sum); the last takes the remainder so the shares
// always add up to amount. A zero ratio sum yields no shares.
func SplitShares(amount uint64, ratios []uint64) []uint64 {
	if len(ratios) == 0 {
		return nil
	}
	var sum uint64
	for _, r := range ratios {
		sum += r
	}
	if sum == 0 {
		return nil
	}
	shares := make([]uint64, len(ratios))
	total := uint256.NewInt(amount)
	divisor := uint256.NewInt(sum)
	var distributed uint64
	last := len(ratios) - 1
	for i, ratio := range ratios {
		if i == last {
			shares[i] = amount - distributed
			break
		}
		share := new(uint256.Int).Mul(total, uint256.NewInt(ratio))
		share.Div(share, divisor)
		shares[i] = share.Uint64()
		distributed += shares[i]
	}
	return shares
}

func distributeSplit(g *Gate, in inbound) decision {
	n := int(g.RecipientCount)
	shares := SplitShares(in.amount, g.Ratios[:n])
	out := decision{status: StatusSuccess}
	for i, share := range shares {
		if share == 0 {
			continue
		}
		out.payouts = append(out.payouts, Payout{To: g.Recipients[i], Amount: share})
	}
	g.TotalForwarded += out.forwarded()
	return out
}

// The cursor is reduced modulo the current count before use so a recipient
// list shortened by an update never points past the declared recipients.
func distributeRoundRobin(g *Gate, in inbound) decision {
	count := uint64(g.RecipientCount)
	idx := g.RoundRobinIndex % count
	g.TotalForwarded += in.amount
	g.RoundRobinIndex = (idx + 1) % count
	return decision{
		payouts: []Payout{{To: g.Recipients[idx], Amount: in.amount}},
		status:  StatusSuccess,
	}
}

func distributeThreshold(g *Gate, in inbound) decision {
	g.CurrentBalance += in.amount
	if g.CurrentBalance < g.Threshold {
		return decision{status: StatusSuccess}
	}
	released := g.CurrentBalance
	g.TotalForwarded += released
	g.CurrentBalance = 0
	return decision{
		payouts: []Payout{{To: g.Recipients[0], Amount: released}},
		status:  StatusSuccess,
	}
}

// Random selection is a function of the gate's received total (already
// including this send) and the host tick. It is reproducible from state.
func distributeRandom(g *Gate, in inbound) decision {
	idx := (g.TotalReceived + in.tick) % uint64(g.RecipientCount)
	g.TotalForwarded += in.amount
	return decision{
		payouts: []Payout{{To: g.Recipients[idx], Amount: in.amount}},
		status:  StatusSuccess,
	}
}

func distributeConditional(g *Gate, in inbound) decision {
	if !g.Allows(in.sender) {
		return decision{refund: in.amount, status: StatusConditionalRejected}
	}
	g.TotalForwarded += in.amount
	return decision{
		payouts: []Payout{{To: g.Recipients[0], Amount: in.amount}},
		status:  StatusSuccess,
	}
}
