package gates

import (
	"qugate/core/events"
	"qugate/crypto"
)

type transfer struct {
	to     crypto.Identity
	amount uint64
}

// mockHost records every transfer and burn the engine asks for.
type mockHost struct {
	epoch     uint16
	tick      uint64
	transfers []transfer
	burned    uint64
}

func newMockHost() *mockHost {
	return &mockHost{epoch: 100, tick: 12345}
}

func (h *mockHost) Epoch() uint16 { return h.epoch }
func (h *mockHost) Tick() uint64  { return h.tick }

func (h *mockHost) Transfer(to crypto.Identity, amount uint64) {
	h.transfers = append(h.transfers, transfer{to: to, amount: amount})
}

func (h *mockHost) Burn(amount uint64) { h.burned += amount }

func (h *mockHost) reset() {
	h.transfers = nil
	h.burned = 0
}

func (h *mockHost) transferredTo(id crypto.Identity) uint64 {
	var total uint64
	for _, t := range h.transfers {
		if t.to == id {
			total += t.amount
		}
	}
	return total
}

func (h *mockHost) transferredTotal() uint64 {
	var total uint64
	for _, t := range h.transfers {
		total += t.amount
	}
	return total
}

func testIdentity(fill byte) crypto.Identity {
	var id crypto.Identity
	id[0] = fill
	return id
}

var (
	alice   = testIdentity(1)
	bob     = testIdentity(2)
	charlie = testIdentity(3)
	dave    = testIdentity(4)
)

type testEnv struct {
	host     *mockHost
	engine   *Engine
	registry *Registry
	recorder *events.Recorder
}

func newTestEnv() *testEnv {
	host := newMockHost()
	registry := NewRegistry(DefaultParams())
	engine := NewEngine(registry, host)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	return &testEnv{host: host, engine: engine, registry: registry, recorder: recorder}
}

// create resets the host, then creates a gate paying fee.
func (env *testEnv) create(owner crypto.Identity, fee uint64, cfg Config) CreateResult {
	env.host.reset()
	return env.engine.CreateGate(owner, fee, cfg)
}

func (env *testEnv) send(sender crypto.Identity, id uint64, amount uint64) Status {
	env.host.reset()
	return env.engine.SendToGate(sender, id, amount)
}

func (env *testEnv) close(caller crypto.Identity, id uint64, reward uint64) Status {
	env.host.reset()
	return env.engine.CloseGate(caller, id, reward)
}

func (env *testEnv) update(caller crypto.Identity, reward uint64, id uint64, cfg Config) Status {
	env.host.reset()
	return env.engine.UpdateGate(caller, reward, id, cfg)
}

func splitConfig(recipients []crypto.Identity, ratios []uint64) Config {
	return NewConfig(ModeSplit, recipients, ratios, 0, nil)
}

func simpleSplit() Config {
	return splitConfig([]crypto.Identity{bob}, []uint64{100})
}
