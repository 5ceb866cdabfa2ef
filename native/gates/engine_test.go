package gates

import (
	"testing"

	"qugate/crypto"
)

func TestCreateGateSuccessBurnsFee(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())
	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", out.Status)
	}
	if out.GateID != 1 || out.FeePaid != 1000 {
		t.Fatalf("unexpected result %+v", out)
	}
	if env.host.burned != 1000 || env.registry.TotalBurned() != 1000 {
		t.Fatalf("expected fee burned, host=%d registry=%d", env.host.burned, env.registry.TotalBurned())
	}
	if len(env.host.transfers) != 0 {
		t.Fatalf("exact fee must not refund, got %v", env.host.transfers)
	}
	info := env.engine.GetGate(out.GateID)
	if !info.Active || info.Owner != alice || info.Mode != ModeSplit || info.RecipientCount != 1 {
		t.Fatalf("unexpected gate %+v", info)
	}
	if info.CreatedEpoch != 100 || info.LastActivityEpoch != 100 {
		t.Fatalf("expected epochs stamped at 100, got %d/%d", info.CreatedEpoch, info.LastActivityEpoch)
	}
}

func TestCreateGateOverpaymentRefund(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 5000, simpleSplit())
	if out.Status != StatusSuccess || out.FeePaid != 1000 {
		t.Fatalf("unexpected result %+v", out)
	}
	if got := env.host.transferredTo(alice); got != 4000 {
		t.Fatalf("expected 4000 refunded, got %d", got)
	}
	if env.host.burned != 1000 {
		t.Fatalf("expected 1000 burned, got %d", env.host.burned)
	}
}

func TestCreateGateInsufficientFeeRefunds(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 500, simpleSplit())
	if out.Status != StatusInsufficientFee || out.GateID != 0 {
		t.Fatalf("unexpected result %+v", out)
	}
	if got := env.host.transferredTo(alice); got != 500 {
		t.Fatalf("expected 500 refunded, got %d", got)
	}
	if env.host.burned != 0 || env.registry.GateCount() != 0 {
		t.Fatalf("failed creation must not mutate state")
	}

	out = env.create(alice, 0, simpleSplit())
	if out.Status != StatusInsufficientFee {
		t.Fatalf("expected insufficient fee, got %s", out.Status)
	}
	if len(env.host.transfers) != 0 {
		t.Fatalf("zero payment must not produce a refund transfer")
	}
}

func TestCreateGateValidationFailuresRefund(t *testing.T) {
	tooMany := make([]crypto.Identity, MaxRecipients+1)
	for i := range tooMany {
		tooMany[i] = testIdentity(byte(10 + i))
	}
	cases := []struct {
		name string
		cfg  Config
		want Status
	}{
		{"invalid mode", Config{Mode: 99, RecipientCount: 1, Recipients: [MaxRecipients]crypto.Identity{bob}, Ratios: [MaxRecipients]uint64{100}}, StatusInvalidMode},
		{"zero recipients", splitConfig(nil, nil), StatusInvalidRecipientCount},
		{"too many recipients", splitConfig(tooMany, nil), StatusInvalidRecipientCount},
		{"zero ratio sum", splitConfig([]crypto.Identity{bob}, []uint64{0}), StatusInvalidRatio},
		{"ratio over max", splitConfig([]crypto.Identity{bob}, []uint64{MaxRatio + 1}), StatusInvalidRatio},
		{"zero threshold", NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 0, nil), StatusInvalidThreshold},
		{"sender count", Config{Mode: ModeConditional, RecipientCount: 1, Recipients: [MaxRecipients]crypto.Identity{bob}, AllowedSenderCount: 9}, StatusInvalidSenderCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			out := env.create(alice, 1500, tc.cfg)
			if out.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, out.Status)
			}
			if got := env.host.transferredTo(alice); got != 1500 {
				t.Fatalf("expected full refund of 1500, got %d", got)
			}
			if env.host.burned != 0 || env.registry.GateCount() != 0 || env.registry.ActiveGates() != 0 {
				t.Fatalf("failed creation mutated state")
			}
		})
	}
}

func TestCreateGateValidationOrder(t *testing.T) {
	env := newTestEnv()
	// Invalid mode and zero recipients: mode is checked first.
	out := env.create(alice, 1000, Config{Mode: 7})
	if out.Status != StatusInvalidMode {
		t.Fatalf("expected invalid mode first, got %s", out.Status)
	}
	// Underpaid and invalid: fee is checked first.
	out = env.create(alice, 10, Config{Mode: 7})
	if out.Status != StatusInsufficientFee {
		t.Fatalf("expected insufficient fee first, got %s", out.Status)
	}
	// Bad ratios and bad sender count: ratios first.
	cfg := splitConfig([]crypto.Identity{bob}, []uint64{0})
	cfg.AllowedSenderCount = 9
	out = env.create(alice, 1000, cfg)
	if out.Status != StatusInvalidRatio {
		t.Fatalf("expected invalid ratio first, got %s", out.Status)
	}
}

func TestCreateGateClearsUnusedSlots(t *testing.T) {
	env := newTestEnv()
	cfg := splitConfig([]crypto.Identity{bob, charlie}, []uint64{1, 1})
	cfg.Recipients[5] = dave
	cfg.Ratios[5] = 77
	cfg.AllowedSenders[3] = dave
	out := env.create(alice, 1000, cfg)
	if out.Status != StatusSuccess {
		t.Fatalf("create: %s", out.Status)
	}
	gate, _ := env.registry.Gate(out.GateID)
	if !gate.Recipients[5].IsZero() || gate.Ratios[5] != 0 || !gate.AllowedSenders[3].IsZero() {
		t.Fatalf("entries past the declared counts must be zeroed: %+v", gate)
	}
}

func TestCreateGateNoFreeSlotsRefunds(t *testing.T) {
	env := newTestEnv()
	for i := 0; i < MaxGates; i++ {
		fee := env.registry.CurrentCreationFee()
		if out := env.create(alice, fee, simpleSplit()); out.Status != StatusSuccess {
			t.Fatalf("create %d: %s", i, out.Status)
		}
	}
	fee := env.registry.CurrentCreationFee()
	out := env.create(alice, fee, simpleSplit())
	if out.Status != StatusNoFreeSlots {
		t.Fatalf("expected no free slots, got %s", out.Status)
	}
	if got := env.host.transferredTo(alice); got != fee {
		t.Fatalf("expected refund of %d, got %d", fee, got)
	}
	if env.registry.GateCount() != MaxGates {
		t.Fatalf("high-water mark moved: %d", env.registry.GateCount())
	}

	if status := env.close(alice, 42, 0); status != StatusSuccess {
		t.Fatalf("close: %s", status)
	}
	fee = env.registry.CurrentCreationFee()
	out = env.create(alice, fee, simpleSplit())
	if out.Status != StatusSuccess || out.GateID != 42 {
		t.Fatalf("expected reuse of gate 42, got %+v", out)
	}
}

func TestGateCountTracking(t *testing.T) {
	env := newTestEnv()
	env.create(alice, 1000, simpleSplit())
	env.create(alice, 1000, NewConfig(ModeRoundRobin, []crypto.Identity{bob}, nil, 0, nil))
	env.create(bob, 1000, NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 1000, nil))

	counts := env.engine.GetGateCount()
	if counts.TotalGates != 3 || counts.ActiveGates != 3 || counts.TotalBurned != 3000 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestSendInvalidGateIDRefunds(t *testing.T) {
	env := newTestEnv()
	if status := env.send(alice, 999, 1000); status != StatusInvalidGateID {
		t.Fatalf("expected invalid gate id, got %s", status)
	}
	if got := env.host.transferredTo(alice); got != 1000 {
		t.Fatalf("expected 1000 bounced, got %d", got)
	}
	if status := env.send(alice, 0, 0); status != StatusInvalidGateID {
		t.Fatalf("gate id 0 must be invalid, got %s", status)
	}
	if len(env.host.transfers) != 0 {
		t.Fatalf("zero amount must not be refunded")
	}
}

func TestSendToInactiveGateRefunds(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())
	env.close(alice, out.GateID, 0)

	if status := env.send(charlie, out.GateID, 100); status != StatusGateNotActive {
		t.Fatalf("expected gate not active, got %s", status)
	}
	if got := env.host.transferredTo(charlie); got != 100 {
		t.Fatalf("expected 100 bounced, got %d", got)
	}
}

func TestSendZeroAmountDoesNothing(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())
	before, _ := env.registry.Gate(out.GateID)

	if status := env.send(alice, out.GateID, 0); status != StatusDustAmount {
		t.Fatalf("expected dust, got %s", status)
	}
	if len(env.host.transfers) != 0 || env.host.burned != 0 {
		t.Fatalf("zero send must not move value")
	}
	after, _ := env.registry.Gate(out.GateID)
	if before != after {
		t.Fatalf("zero send mutated the gate")
	}
}

func TestSendDustIsBurned(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())
	env.host.epoch = 130

	if status := env.send(alice, out.GateID, 5); status != StatusDustAmount {
		t.Fatalf("expected dust, got %s", status)
	}
	if env.host.burned != 5 || len(env.host.transfers) != 0 {
		t.Fatalf("expected 5 burned without transfers, burned=%d transfers=%v", env.host.burned, env.host.transfers)
	}
	if env.registry.TotalBurned() != 1005 {
		t.Fatalf("expected total burned 1005, got %d", env.registry.TotalBurned())
	}
	gate, _ := env.registry.Gate(out.GateID)
	if gate.TotalReceived != 0 || gate.LastActivityEpoch != 100 {
		t.Fatalf("dust must not count as activity: %+v", gate)
	}
}

func TestSendExactMinimumForwards(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())
	if status := env.send(alice, out.GateID, 10); status != StatusSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if got := env.host.transferredTo(bob); got != 10 {
		t.Fatalf("expected 10 forwarded, got %d", got)
	}
	if env.host.burned != 0 {
		t.Fatalf("minimum send must not burn")
	}
}

func TestTotalBurnedTracking(t *testing.T) {
	env := newTestEnv()
	env.create(alice, 1000, simpleSplit())
	env.send(alice, 1, 5)
	env.create(alice, 1000, simpleSplit())
	if got := env.engine.GetGateCount().TotalBurned; got != 2005 {
		t.Fatalf("expected 2005 burned, got %d", got)
	}
}

func TestCloseGate(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())

	if status := env.close(alice, out.GateID, 250); status != StatusSuccess {
		t.Fatalf("close: %s", status)
	}
	if got := env.host.transferredTo(alice); got != 250 {
		t.Fatalf("expected reward returned, got %d", got)
	}
	if env.registry.ActiveGates() != 0 {
		t.Fatalf("expected no active gates")
	}
	if info := env.engine.GetGate(out.GateID); info.Active {
		t.Fatalf("gate still active")
	}
	if status := env.close(alice, out.GateID, 0); status != StatusGateNotActive {
		t.Fatalf("expected gate not active on second close, got %s", status)
	}
}

func TestCloseGateRefundsHeldBalance(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 10000, nil))
	env.send(charlie, out.GateID, 700)

	if status := env.close(alice, out.GateID, 0); status != StatusSuccess {
		t.Fatalf("close: %s", status)
	}
	if got := env.host.transferredTo(alice); got != 700 {
		t.Fatalf("expected held balance refunded to owner, got %d", got)
	}
	gate, _ := env.registry.Gate(out.GateID)
	if gate.CurrentBalance != 0 {
		t.Fatalf("balance not cleared")
	}
}

func TestCloseGateRejections(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())

	if status := env.close(bob, out.GateID, 30); status != StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %s", status)
	}
	if got := env.host.transferredTo(bob); got != 30 {
		t.Fatalf("rejected close must return the reward, got %d", got)
	}
	if env.registry.ActiveGates() != 1 {
		t.Fatalf("unauthorized close changed state")
	}
	if status := env.close(alice, 999, 0); status != StatusInvalidGateID {
		t.Fatalf("expected invalid gate id, got %s", status)
	}
}

func TestUpdateGate(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, splitConfig([]crypto.Identity{bob, charlie}, []uint64{50, 50}))
	env.host.epoch = 130

	cfg := splitConfig([]crypto.Identity{dave}, []uint64{100})
	cfg.Mode = ModeThreshold
	if status := env.update(alice, 40, out.GateID, cfg); status != StatusSuccess {
		t.Fatalf("update: %s", status)
	}
	if got := env.host.transferredTo(alice); got != 40 {
		t.Fatalf("expected reward returned, got %d", got)
	}
	gate, _ := env.registry.Gate(out.GateID)
	if gate.Mode != ModeSplit {
		t.Fatalf("mode must be immutable, got %s", gate.Mode)
	}
	if gate.RecipientCount != 1 || gate.Recipients[0] != dave || !gate.Recipients[1].IsZero() || gate.Ratios[1] != 0 {
		t.Fatalf("unexpected recipients %+v", gate)
	}
	if gate.LastActivityEpoch != 130 || gate.CreatedEpoch != 100 {
		t.Fatalf("unexpected epochs %d/%d", gate.CreatedEpoch, gate.LastActivityEpoch)
	}

	env.send(charlie, out.GateID, 100)
	if got := env.host.transferredTo(dave); got != 100 {
		t.Fatalf("expected updated recipient to receive 100, got %d", got)
	}
}

func TestUpdateGatePreservesCursorAndCounters(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, NewConfig(ModeRoundRobin, []crypto.Identity{bob, charlie, dave}, nil, 0, nil))
	env.send(alice, out.GateID, 100)
	before, _ := env.registry.Gate(out.GateID)

	cfg := NewConfig(ModeRoundRobin, []crypto.Identity{dave, charlie, bob}, nil, 0, nil)
	if status := env.update(alice, 0, out.GateID, cfg); status != StatusSuccess {
		t.Fatalf("update: %s", status)
	}
	after, _ := env.registry.Gate(out.GateID)
	if after.RoundRobinIndex != before.RoundRobinIndex || after.TotalReceived != before.TotalReceived ||
		after.TotalForwarded != before.TotalForwarded || after.CurrentBalance != before.CurrentBalance {
		t.Fatalf("update touched cursor or counters: before=%+v after=%+v", before, after)
	}
}

func TestUpdateGateRejections(t *testing.T) {
	env := newTestEnv()
	split := env.create(alice, 1000, simpleSplit())
	threshold := env.create(alice, 1000, NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 500, nil))
	before, err := env.registry.StateRoot()
	if err != nil {
		t.Fatalf("state root: %v", err)
	}

	cases := []struct {
		name   string
		caller crypto.Identity
		id     uint64
		cfg    Config
		want   Status
	}{
		{"invalid id", alice, 999, simpleSplit(), StatusInvalidGateID},
		{"unauthorized", bob, split.GateID, simpleSplit(), StatusUnauthorized},
		{"zero recipients", alice, split.GateID, splitConfig(nil, nil), StatusInvalidRecipientCount},
		{"sender count", alice, split.GateID, Config{RecipientCount: 1, Recipients: [MaxRecipients]crypto.Identity{bob}, Ratios: [MaxRecipients]uint64{1}, AllowedSenderCount: 9}, StatusInvalidSenderCount},
		{"split ratio over max", alice, split.GateID, splitConfig([]crypto.Identity{bob}, []uint64{MaxRatio + 1}), StatusInvalidRatio},
		{"split zero sum", alice, split.GateID, splitConfig([]crypto.Identity{bob}, []uint64{0}), StatusInvalidRatio},
		{"threshold zero", alice, threshold.GateID, NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 0, nil), StatusInvalidThreshold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if status := env.update(tc.caller, 25, tc.id, tc.cfg); status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, status)
			}
			if got := env.host.transferredTo(tc.caller); got != 25 {
				t.Fatalf("expected reward refunded, got %d", got)
			}
		})
	}
	after, err := env.registry.StateRoot()
	if err != nil {
		t.Fatalf("state root: %v", err)
	}
	if before != after {
		t.Fatalf("rejected updates mutated the registry")
	}

	env.close(alice, split.GateID, 0)
	if status := env.update(alice, 0, split.GateID, simpleSplit()); status != StatusGateNotActive {
		t.Fatalf("expected gate not active, got %s", status)
	}
}

func TestUpdateIgnoresRatiosOutsideSplit(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, NewConfig(ModeRandom, []crypto.Identity{bob, charlie}, nil, 0, nil))
	cfg := NewConfig(ModeRandom, []crypto.Identity{bob}, []uint64{MaxRatio + 5}, 0, nil)
	if status := env.update(alice, 0, out.GateID, cfg); status != StatusSuccess {
		t.Fatalf("ratio limits only apply to split gates, got %s", status)
	}
}

func TestFreeListSlotReuse(t *testing.T) {
	env := newTestEnv()
	g1 := env.create(alice, 1000, simpleSplit())
	g2 := env.create(alice, 1000, simpleSplit())
	if g1.GateID != 1 || g2.GateID != 2 {
		t.Fatalf("unexpected ids %d %d", g1.GateID, g2.GateID)
	}

	env.close(alice, 1, 0)
	if len(env.registry.FreeSlots()) != 1 || env.registry.ActiveGates() != 1 {
		t.Fatalf("unexpected free list %v", env.registry.FreeSlots())
	}

	g3 := env.create(bob, 1000, simpleSplit())
	if g3.GateID != 1 {
		t.Fatalf("expected slot 1 reused, got %d", g3.GateID)
	}
	if env.registry.GateCount() != 2 || len(env.registry.FreeSlots()) != 0 || env.registry.ActiveGates() != 2 {
		t.Fatalf("unexpected registry counters after reuse")
	}
	if info := env.engine.GetGate(1); info.Owner != bob || !info.Active {
		t.Fatalf("reused slot not reinitialised: %+v", info)
	}
}

func TestFreeListIsLIFO(t *testing.T) {
	env := newTestEnv()
	for i := 0; i < 4; i++ {
		env.create(alice, 1000, simpleSplit())
	}
	env.close(alice, 2, 0)
	env.close(alice, 4, 0)
	env.close(alice, 1, 0)

	want := []uint64{1, 4, 2}
	for _, id := range want {
		out := env.create(alice, 1000, simpleSplit())
		if out.GateID != id {
			t.Fatalf("expected id %d, got %d", id, out.GateID)
		}
	}
	out := env.create(alice, 1000, simpleSplit())
	if out.GateID != 5 {
		t.Fatalf("expected fresh id 5 after free list drained, got %d", out.GateID)
	}
}

func TestGetGateOutOfRange(t *testing.T) {
	env := newTestEnv()
	if info := env.engine.GetGate(0); info != (GateInfo{}) {
		t.Fatalf("expected zero view for id 0")
	}
	if info := env.engine.GetGate(77); info.Active {
		t.Fatalf("expected inactive view for unknown id")
	}
}

func TestLastActivityEpochUpdates(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, simpleSplit())

	env.host.epoch = 120
	env.send(charlie, out.GateID, 100)
	if got := env.engine.GetGate(out.GateID).LastActivityEpoch; got != 120 {
		t.Fatalf("expected 120 after send, got %d", got)
	}

	env.host.epoch = 130
	env.update(alice, 0, out.GateID, splitConfig([]crypto.Identity{charlie}, []uint64{100}))
	if got := env.engine.GetGate(out.GateID).LastActivityEpoch; got != 130 {
		t.Fatalf("expected 130 after update, got %d", got)
	}
}

func TestEngineEmitsEvents(t *testing.T) {
	env := newTestEnv()
	out := env.create(alice, 1000, splitConfig([]crypto.Identity{bob, charlie}, []uint64{1, 1}))
	env.send(dave, out.GateID, 100)
	env.send(dave, out.GateID, 3)
	env.close(alice, out.GateID, 0)

	got := env.recorder.Events()
	wantTypes := []string{EventTypeGateCreated, EventTypeGateForwarded, EventTypeGateDustBurned, EventTypeGateClosed}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(got))
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, got[i].Type)
		}
	}
	forward := got[1]
	if forward.Attr("payouts") != "2" || forward.Attr("amount.0") != "50" || forward.Attr("to.1") != charlie.String() {
		t.Fatalf("unexpected forward attributes %v", forward.Attributes)
	}
	if got[0].Attr("fee") != "1000" || got[0].Attr("mode") != "split" {
		t.Fatalf("unexpected created attributes %v", got[0].Attributes)
	}
}
