package gates

import (
	"testing"

	"qugate/crypto"
)

func TestEndEpochExpiresIdleGates(t *testing.T) {
	env := newTestEnv()
	env.host.epoch = 100
	out := env.create(alice, 1000, NewConfig(ModeThreshold, []crypto.Identity{bob}, nil, 1000, nil))
	env.send(charlie, out.GateID, 300)

	env.host.epoch = 149
	env.host.reset()
	if closed := env.engine.EndEpoch(); len(closed) != 0 {
		t.Fatalf("expected nothing expired at 49 epochs idle, got %v", closed)
	}

	env.host.epoch = 150
	env.host.reset()
	closed := env.engine.EndEpoch()
	if len(closed) != 1 || closed[0] != out.GateID {
		t.Fatalf("expected gate %d expired, got %v", out.GateID, closed)
	}
	if env.host.transferredTo(alice) != 300 {
		t.Fatalf("expected held balance refunded to owner, transfers=%v", env.host.transfers)
	}
	info := env.engine.GetGate(out.GateID)
	if info.Active || info.CurrentBalance != 0 {
		t.Fatalf("unexpected gate after expiry %+v", info)
	}
	if counts := env.engine.GetGateCount(); counts.ActiveGates != 0 {
		t.Fatalf("expected no active gates, got %+v", counts)
	}
	if free := env.registry.FreeSlots(); len(free) != 1 || free[0] != out.GateID-1 {
		t.Fatalf("expected expired slot on the free list, got %v", free)
	}
}

func TestEndEpochSkipsRecentlyTouchedGates(t *testing.T) {
	env := newTestEnv()
	env.host.epoch = 100
	idle := env.create(alice, 1000, simpleSplit())
	touched := env.create(alice, 1000, simpleSplit())

	env.host.epoch = 130
	env.send(charlie, touched.GateID, 100)

	env.host.epoch = 160
	closed := env.engine.EndEpoch()
	if len(closed) != 1 || closed[0] != idle.GateID {
		t.Fatalf("expected only the idle gate expired, got %v", closed)
	}
	if !env.engine.GetGate(touched.GateID).Active {
		t.Fatalf("touched gate must stay active")
	}

	env.host.epoch = 180
	closed = env.engine.EndEpoch()
	if len(closed) != 1 || closed[0] != touched.GateID {
		t.Fatalf("expected touched gate expired at 50 epochs idle, got %v", closed)
	}
}

func TestEndEpochUpdateResetsIdleClock(t *testing.T) {
	env := newTestEnv()
	env.host.epoch = 10
	out := env.create(alice, 1000, simpleSplit())
	env.host.epoch = 55
	env.update(alice, 0, out.GateID, simpleSplit())
	env.host.epoch = 60
	if closed := env.engine.EndEpoch(); len(closed) != 0 {
		t.Fatalf("expected update to reset idle clock, got %v", closed)
	}
}

func TestEndEpochHandlesEpochWraparound(t *testing.T) {
	env := newTestEnv()
	env.host.epoch = 65530
	out := env.create(alice, 1000, simpleSplit())

	env.host.epoch = 10 // 16 epochs later after wrapping
	if closed := env.engine.EndEpoch(); len(closed) != 0 {
		t.Fatalf("expected no expiry 16 epochs after wraparound, got %v", closed)
	}
	env.host.epoch = 44 // 50 epochs later
	closed := env.engine.EndEpoch()
	if len(closed) != 1 || closed[0] != out.GateID {
		t.Fatalf("expected expiry across wraparound, got %v", closed)
	}
}

func TestEndEpochIgnoresClosedGates(t *testing.T) {
	env := newTestEnv()
	env.host.epoch = 100
	out := env.create(alice, 1000, simpleSplit())
	env.close(alice, out.GateID, 0)
	env.host.epoch = 500
	env.host.reset()
	if closed := env.engine.EndEpoch(); len(closed) != 0 {
		t.Fatalf("closed gates must not expire again, got %v", closed)
	}
	if len(env.host.transfers) != 0 {
		t.Fatalf("unexpected transfers %v", env.host.transfers)
	}
	if free := env.registry.FreeSlots(); len(free) != 1 {
		t.Fatalf("slot pushed twice: %v", free)
	}
}

func TestEndEpochDisabledWithZeroWindow(t *testing.T) {
	params := DefaultParams()
	params.ExpiryEpochs = 0
	env := newTestEnv()
	env.registry = NewRegistry(params)
	env.engine.SetRegistry(env.registry)
	env.host.epoch = 1
	env.create(alice, 1000, simpleSplit())
	env.host.epoch = 60000
	if closed := env.engine.EndEpoch(); len(closed) != 0 {
		t.Fatalf("expected expiry disabled, got %v", closed)
	}
}

func TestParamsValidateExpiryWindow(t *testing.T) {
	params := DefaultParams()
	params.ExpiryEpochs = 0x10000
	if err := params.Validate(); err == nil {
		t.Fatalf("expected window beyond 16 bits to be rejected")
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params: %v", err)
	}
}
