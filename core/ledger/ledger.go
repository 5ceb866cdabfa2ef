package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"qugate/core/events"
	"qugate/crypto"
)

var (
	// ErrInsufficientBalance is returned when a caller cannot cover an attached payment.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrContractOverdrawn means a payout exceeded what the contract account holds.
	ErrContractOverdrawn = errors.New("ledger: contract account overdrawn")
	// ErrSupplyOverflow is returned when balances would exceed the uint64 range.
	ErrSupplyOverflow = errors.New("ledger: total supply overflows uint64")
	// ErrReservedAccount rejects direct sends to or from the contract account.
	ErrReservedAccount = errors.New("ledger: direct sends cannot touch the contract account")
	errInvalidSnapshot = errors.New("ledger: invalid snapshot")
)

// ContractAccount is the identity holding value collected from callers until
// the gate engine forwards, refunds or burns it.
var ContractAccount = contractIdentity()

func contractIdentity() crypto.Identity {
	id, err := crypto.IdentityFromSeed("qugate-contract")
	if err != nil {
		panic(err)
	}
	return id
}

// Ledger tracks identity balances. Value enters the contract account through
// Collect and leaves it through Transfer and Burn. The sum of all balances
// plus Burned always equals the genesis supply.
//
// Ledger is not safe for concurrent use; the node serialises access.
type Ledger struct {
	balances map[crypto.Identity]uint64
	burned   uint64
	supply   uint64
	emitter  events.Emitter
	fault    error
}

// New builds a ledger from initial balances. The total must fit in a uint64.
func New(balances map[crypto.Identity]uint64) (*Ledger, error) {
	l := &Ledger{balances: make(map[crypto.Identity]uint64, len(balances)), emitter: events.NoopEmitter{}}
	for id, amount := range balances {
		if amount == 0 {
			continue
		}
		if l.supply+amount < l.supply {
			return nil, ErrSupplyOverflow
		}
		l.supply += amount
		l.balances[id] = amount
	}
	return l, nil
}

// SetEmitter configures where transfer and burn events go.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// Balance returns the balance held by id.
func (l *Ledger) Balance(id crypto.Identity) uint64 { return l.balances[id] }

// Burned returns the cumulative value destroyed.
func (l *Ledger) Burned() uint64 { return l.burned }

// Supply returns the genesis supply, which never changes.
func (l *Ledger) Supply() uint64 { return l.supply }

// Collect moves an attached payment from the caller into the contract account.
func (l *Ledger) Collect(from crypto.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, l.balances[from], amount)
	}
	l.move(from, ContractAccount, amount)
	return nil
}

// Send moves value directly between two identities, outside any gate.
func (l *Ledger) Send(from, to crypto.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == ContractAccount || to == ContractAccount {
		return ErrReservedAccount
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, l.balances[from], amount)
	}
	l.move(from, to, amount)
	return nil
}

// Transfer pays amount out of the contract account.
func (l *Ledger) Transfer(to crypto.Identity, amount uint64) {
	if amount == 0 {
		return
	}
	if l.balances[ContractAccount] < amount {
		l.recordFault(fmt.Errorf("%w: transfer of %d to %s", ErrContractOverdrawn, amount, to))
		return
	}
	l.move(ContractAccount, to, amount)
}

// Burn destroys amount held by the contract account.
func (l *Ledger) Burn(amount uint64) {
	if amount == 0 {
		return
	}
	if l.balances[ContractAccount] < amount {
		l.recordFault(fmt.Errorf("%w: burn of %d", ErrContractOverdrawn, amount))
		return
	}
	l.debit(ContractAccount, amount)
	l.burned += amount
	l.emitter.Emit(events.Burn{Amount: amount})
}

// Err returns the first payout fault since the last TakeErr, if any.
func (l *Ledger) Err() error { return l.fault }

// TakeErr returns and clears the recorded fault.
func (l *Ledger) TakeErr() error {
	err := l.fault
	l.fault = nil
	return err
}

func (l *Ledger) recordFault(err error) {
	if l.fault == nil {
		l.fault = err
	}
}

func (l *Ledger) move(from, to crypto.Identity, amount uint64) {
	l.debit(from, amount)
	l.balances[to] += amount
	l.emitter.Emit(events.Transfer{From: from, To: to, Amount: amount})
}

func (l *Ledger) debit(id crypto.Identity, amount uint64) {
	remaining := l.balances[id] - amount
	if remaining == 0 {
		delete(l.balances, id)
		return
	}
	l.balances[id] = remaining
}

// Account is one persisted balance.
type Account struct {
	ID      crypto.Identity
	Balance uint64
}

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	Supply   uint64
	Burned   uint64
	Accounts []Account
}

// Snapshot returns the ledger state with accounts sorted by identity.
func (l *Ledger) Snapshot() *Snapshot {
	accounts := make([]Account, 0, len(l.balances))
	for id, balance := range l.balances {
		accounts = append(accounts, Account{ID: id, Balance: balance})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].ID[:], accounts[j].ID[:]) < 0
	})
	return &Snapshot{Supply: l.supply, Burned: l.burned, Accounts: accounts}
}

// Restore rebuilds a ledger, checking that balances and burns add up to the supply.
func Restore(snap *Snapshot) (*Ledger, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", errInvalidSnapshot)
	}
	balances := make(map[crypto.Identity]uint64, len(snap.Accounts))
	total := snap.Burned
	for _, acct := range snap.Accounts {
		if _, dup := balances[acct.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate account %s", errInvalidSnapshot, acct.ID)
		}
		if total+acct.Balance < total {
			return nil, ErrSupplyOverflow
		}
		total += acct.Balance
		if acct.Balance > 0 {
			balances[acct.ID] = acct.Balance
		}
	}
	if total != snap.Supply {
		return nil, fmt.Errorf("%w: balances and burns total %d, supply %d", errInvalidSnapshot, total, snap.Supply)
	}
	return &Ledger{balances: balances, burned: snap.Burned, supply: snap.Supply, emitter: events.NoopEmitter{}}, nil
}
