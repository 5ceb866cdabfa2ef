package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"qugate/config"
	"qugate/core/events"
	"qugate/core/ledger"
	"qugate/core/types"
	"qugate/crypto"
	"qugate/native/gates"
	"qugate/observability"
	"qugate/storage"
)

var errContractGenesis = errors.New("node: genesis must not fund the contract account")

// Node owns the gate engine and the ledger host it runs in. Every procedure
// runs under one mutex: the attached payment is collected, the engine runs,
// the resulting state is persisted and only then are its events published.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	engine  *gates.Engine
	ledger  *ledger.Ledger
	epoch   uint16
	tick    uint64
	pending *events.Recorder
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.GateMetrics
}

// nodeHost exposes the node clock and ledger to the engine.
type nodeHost struct{ n *Node }

func (h nodeHost) Epoch() uint16                              { return h.n.epoch }
func (h nodeHost) Tick() uint64                               { return h.n.tick }
func (h nodeHost) Transfer(to crypto.Identity, amount uint64) { h.n.ledger.Transfer(to, amount) }
func (h nodeHost) Burn(amount uint64)                         { h.n.ledger.Burn(amount) }

// NewNode resumes from the state stored in db, or seeds a fresh node from
// genesis when db is empty.
func NewNode(db storage.Database, genesis *config.Genesis) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: database required")
	}
	n := &Node{
		db:      db,
		pending: &events.Recorder{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
	st, err := loadState(db)
	if err != nil {
		return nil, err
	}
	if st == nil {
		if genesis == nil {
			genesis = config.DefaultGenesis()
		}
		if err := n.initGenesis(genesis); err != nil {
			return nil, err
		}
		if err := n.persist(); err != nil {
			return nil, err
		}
	} else if err := n.apply(st); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) initGenesis(genesis *config.Genesis) error {
	if err := genesis.Params.Validate(); err != nil {
		return err
	}
	accounts, err := genesis.Accounts()
	if err != nil {
		return err
	}
	if accounts[ledger.ContractAccount] != 0 {
		return errContractGenesis
	}
	l, err := ledger.New(accounts)
	if err != nil {
		return err
	}
	n.epoch = genesis.Epoch
	n.tick = 0
	n.bind(l, gates.NewRegistry(genesis.Params))
	return nil
}

func (n *Node) apply(st *persistedState) error {
	l, reg, err := st.restore()
	if err != nil {
		return err
	}
	n.epoch = st.Epoch
	n.tick = st.Tick
	n.bind(l, reg)
	return nil
}

func (n *Node) bind(l *ledger.Ledger, reg *gates.Registry) {
	l.SetEmitter(n.pending)
	n.ledger = l
	if n.engine == nil {
		n.engine = gates.NewEngine(reg, nodeHost{n: n})
		n.engine.SetEmitter(n.pending)
		return
	}
	n.engine.SetRegistry(reg)
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

// SetLogger replaces the node logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if logger != nil {
		n.logger = logger
	}
}

// SetMetrics enables gate metrics.
func (n *Node) SetMetrics(metrics *observability.GateMetrics) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics = metrics
	n.metrics.SetState(n.engine.Registry().ActiveGates(), n.epoch)
}

func (n *Node) snapshot() (*persistedState, error) {
	registry, err := gates.EncodeSnapshot(n.engine.Registry().Snapshot())
	if err != nil {
		return nil, err
	}
	return &persistedState{
		Epoch:  n.epoch,
		Tick:   n.tick,
		Ledger: *n.ledger.Snapshot(),
		Gates:  registry,
	}, nil
}

func (n *Node) persist() error {
	st, err := n.snapshot()
	if err != nil {
		return fmt.Errorf("encode gate registry: %w", err)
	}
	encoded, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("encode node state: %w", err)
	}
	if err := n.db.Put(stateKey, encoded); err != nil {
		return fmt.Errorf("write node state: %w", err)
	}
	return nil
}

// checkRecipients rejects configurations that route value back into the
// contract account, which would leave it holding forwarded funds.
func checkRecipients(cfg gates.Config) error {
	count := int(cfg.RecipientCount)
	if count > gates.MaxRecipients {
		count = gates.MaxRecipients
	}
	for i := 0; i < count; i++ {
		if cfg.Recipients[i] == ledger.ContractAccount {
			return fmt.Errorf("%w: recipient %d is the contract account", ledger.ErrReservedAccount, i)
		}
	}
	return nil
}

// begin collects the attached payment and advances the tick. The contract
// account never acts as a caller.
func (n *Node) begin(caller crypto.Identity, attached uint64) error {
	if caller == ledger.ContractAccount {
		return fmt.Errorf("%w: contract account cannot invoke gates", ledger.ErrReservedAccount)
	}
	if err := n.ledger.Collect(caller, attached); err != nil {
		n.pending.Drain()
		return err
	}
	n.tick++
	return nil
}

// commit persists the state left by a procedure and publishes its events.
// A ledger fault or a failed write rolls the node back to the last persisted
// state and drops the events.
func (n *Node) commit(operation string, status gates.Status) error {
	err := n.ledger.TakeErr()
	if err == nil {
		if held := heldBalance(n.engine.Registry()); held != n.ledger.Balance(ledger.ContractAccount) {
			err = fmt.Errorf("%w: gates hold %d, contract account %d", errStateCorrupt, held, n.ledger.Balance(ledger.ContractAccount))
		}
	}
	if err == nil {
		err = n.persist()
	}
	if err != nil {
		n.pending.Drain()
		n.logger.Error("gate procedure rolled back", "operation", operation, "error", err)
		if rbErr := n.rollback(); rbErr != nil {
			n.logger.Error("rollback failed", "error", rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}

	published := n.pending.Drain()
	for _, evt := range published {
		n.emitter.Emit(gates.WrapEvent(evt))
	}
	n.record(operation, status, published)
	return nil
}

func (n *Node) rollback() error {
	st, err := loadState(n.db)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("node: no persisted state to roll back to")
	}
	return n.apply(st)
}

func (n *Node) record(operation string, status gates.Status, published []*types.Event) {
	n.logger.Debug("gate procedure", "operation", operation, "status", status.String(), "epoch", n.epoch, "events", len(published))
	if n.metrics == nil {
		return
	}
	n.metrics.RecordProcedure(operation, status.String())
	for _, evt := range published {
		switch evt.Type {
		case gates.EventTypeGateCreated:
			n.metrics.RecordBurn("fee", parseAmount(evt.Attr("fee")))
		case gates.EventTypeGateDustBurned:
			n.metrics.RecordBurn("dust", parseAmount(evt.Attr("amount")))
		case gates.EventTypeGateForwarded:
			for key, value := range evt.Attributes {
				if strings.HasPrefix(key, "amount.") {
					n.metrics.RecordForward(parseAmount(value))
				}
			}
		case gates.EventTypeGateExpired:
			n.metrics.RecordExpired(1)
		}
	}
	n.metrics.SetState(n.engine.Registry().ActiveGates(), n.epoch)
}

func parseAmount(raw string) uint64 {
	v, _ := strconv.ParseUint(raw, 10, 64)
	return v
}

// CreateGate collects paid from caller and creates a gate. The returned error
// is non-nil only when the caller cannot cover paid or the node fails to
// commit; gate-level failures are reported through the result status.
func (n *Node) CreateGate(caller crypto.Identity, paid uint64, cfg gates.Config) (gates.CreateResult, error) {
	if err := checkRecipients(cfg); err != nil {
		return gates.CreateResult{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.begin(caller, paid); err != nil {
		return gates.CreateResult{}, err
	}
	result := n.engine.CreateGate(caller, paid, cfg)
	if err := n.commit("create", result.Status); err != nil {
		return gates.CreateResult{}, err
	}
	if result.Status.OK() {
		n.logger.Info("gate created", "gate_id", result.GateID, "mode", cfg.Mode.String(), "fee", result.FeePaid)
	}
	return result, nil
}

// SendToGate collects amount from sender and routes it through gate id.
func (n *Node) SendToGate(sender crypto.Identity, id uint64, amount uint64) (gates.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.begin(sender, amount); err != nil {
		return gates.StatusSuccess, err
	}
	status := n.engine.SendToGate(sender, id, amount)
	if err := n.commit("send", status); err != nil {
		return status, err
	}
	return status, nil
}

// CloseGate closes gate id on behalf of caller. reward is collected and
// always returned.
func (n *Node) CloseGate(caller crypto.Identity, id uint64, reward uint64) (gates.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.begin(caller, reward); err != nil {
		return gates.StatusSuccess, err
	}
	status := n.engine.CloseGate(caller, id, reward)
	if err := n.commit("close", status); err != nil {
		return status, err
	}
	if status.OK() {
		n.logger.Info("gate closed", "gate_id", id)
	}
	return status, nil
}

// UpdateGate replaces the configuration of gate id on behalf of caller.
func (n *Node) UpdateGate(caller crypto.Identity, reward uint64, id uint64, cfg gates.Config) (gates.Status, error) {
	if err := checkRecipients(cfg); err != nil {
		return gates.StatusSuccess, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.begin(caller, reward); err != nil {
		return gates.StatusSuccess, err
	}
	status := n.engine.UpdateGate(caller, reward, id, cfg)
	if err := n.commit("update", status); err != nil {
		return status, err
	}
	return status, nil
}

// AdvanceEpoch moves to the next epoch and expires idle gates. The epoch
// counter wraps at 16 bits.
func (n *Node) AdvanceEpoch() ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.epoch++
	n.tick++
	closed := n.engine.EndEpoch()
	n.pending.Emit(events.EpochAdvanced{Epoch: n.epoch, Expired: len(closed)})
	if err := n.commit("end_epoch", gates.StatusSuccess); err != nil {
		return nil, err
	}
	if len(closed) > 0 {
		n.logger.Info("gates expired", "epoch", n.epoch, "count", len(closed))
	}
	return closed, nil
}

// Send moves value between two identities without touching any gate. It is
// how a gate's output can feed another gate: the recipient simply sends on.
func (n *Node) Send(from, to crypto.Identity, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ledger.Send(from, to, amount); err != nil {
		n.pending.Drain()
		return err
	}
	n.tick++
	return n.commit("transfer", gates.StatusSuccess)
}

// GetGate returns the public view of gate id.
func (n *Node) GetGate(id uint64) gates.GateInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetGate(id)
}

// GetGateCount returns the registry counters.
func (n *Node) GetGateCount() gates.Counts {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetGateCount()
}

// GetFees returns the current fee schedule.
func (n *Node) GetFees() gates.Fees {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetFees()
}

// Balance returns the ledger balance of id.
func (n *Node) Balance(id crypto.Identity) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Balance(id)
}

// Supply returns the genesis supply and the amount burned since.
func (n *Node) Supply() (total uint64, burned uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Supply(), n.ledger.Burned()
}

// Epoch returns the current epoch.
func (n *Node) Epoch() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epoch
}

// StateRoot is the BLAKE3 commitment to the node clock, ledger and registry.
func (n *Node) StateRoot() ([32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, err := n.snapshot()
	if err != nil {
		return [32]byte{}, err
	}
	return stateRoot(st)
}

// RegistryRoot commits to the gate registry alone.
func (n *Node) RegistryRoot() ([32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Registry().StateRoot()
}

// Close releases the database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
