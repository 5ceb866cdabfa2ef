package ledger

import (
	"errors"
	"math"
	"testing"

	"qugate/core/events"
	"qugate/crypto"
)

func identity(fill byte) crypto.Identity {
	var id crypto.Identity
	id[0] = fill
	return id
}

var (
	alice = identity(1)
	bob   = identity(2)
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(map[crypto.Identity]uint64{alice: 10_000, bob: 500})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func conserved(t *testing.T, l *Ledger) {
	t.Helper()
	var total uint64
	for _, acct := range l.Snapshot().Accounts {
		total += acct.Balance
	}
	if total+l.Burned() != l.Supply() {
		t.Fatalf("supply not conserved: balances %d burned %d supply %d", total, l.Burned(), l.Supply())
	}
}

func TestCollectTransferBurn(t *testing.T) {
	l := newTestLedger(t)
	recorder := &events.Recorder{}
	l.SetEmitter(recorder)

	if err := l.Collect(alice, 1500); err != nil {
		t.Fatalf("collect: %v", err)
	}
	l.Burn(1000)
	l.Transfer(bob, 300)
	l.Transfer(alice, 200)
	if err := l.Err(); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}

	if got := l.Balance(alice); got != 8700 {
		t.Fatalf("alice balance %d", got)
	}
	if got := l.Balance(bob); got != 800 {
		t.Fatalf("bob balance %d", got)
	}
	if got := l.Balance(ContractAccount); got != 0 {
		t.Fatalf("contract should be drained, holds %d", got)
	}
	if l.Burned() != 1000 {
		t.Fatalf("burned %d", l.Burned())
	}
	conserved(t, l)

	evts := recorder.Events()
	if len(evts) != 4 {
		t.Fatalf("expected 4 events, got %d", len(evts))
	}
	if evts[0].Type != events.TypeTransfer || evts[1].Type != events.TypeBurn {
		t.Fatalf("unexpected event order %s, %s", evts[0].Type, evts[1].Type)
	}
}

func TestCollectInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	err := l.Collect(bob, 501)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if l.Balance(bob) != 500 {
		t.Fatalf("failed collect moved value")
	}
}

func TestOverdrawRecordsFault(t *testing.T) {
	l := newTestLedger(t)
	l.Transfer(bob, 1)
	l.Burn(5)
	if err := l.TakeErr(); !errors.Is(err, ErrContractOverdrawn) {
		t.Fatalf("expected overdraw fault, got %v", err)
	}
	if l.Err() != nil {
		t.Fatalf("fault not cleared")
	}
	if l.Balance(bob) != 500 || l.Burned() != 0 {
		t.Fatalf("overdraw moved value")
	}
}

func TestNewRejectsSupplyOverflow(t *testing.T) {
	_, err := New(map[crypto.Identity]uint64{alice: math.MaxUint64, bob: 1})
	if !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Collect(alice, 100); err != nil {
		t.Fatalf("collect: %v", err)
	}
	l.Burn(40)

	restored, err := Restore(l.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	for _, id := range []crypto.Identity{alice, bob, ContractAccount} {
		if restored.Balance(id) != l.Balance(id) {
			t.Fatalf("balance mismatch for %s", id)
		}
	}
	if restored.Burned() != 40 || restored.Supply() != 10_500 {
		t.Fatalf("unexpected totals burned=%d supply=%d", restored.Burned(), restored.Supply())
	}

	snap := l.Snapshot()
	snap.Supply++
	if _, err := Restore(snap); !errors.Is(err, errInvalidSnapshot) {
		t.Fatalf("expected supply mismatch, got %v", err)
	}
	snap = l.Snapshot()
	snap.Accounts = append(snap.Accounts, snap.Accounts[0])
	if _, err := Restore(snap); !errors.Is(err, errInvalidSnapshot) {
		t.Fatalf("expected duplicate account rejection, got %v", err)
	}
}

func TestSend(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Send(bob, alice, 200); err != nil {
		t.Fatalf("send: %v", err)
	}
	if l.Balance(bob) != 300 || l.Balance(alice) != 10_200 {
		t.Fatalf("unexpected balances bob=%d alice=%d", l.Balance(bob), l.Balance(alice))
	}
	if err := l.Send(bob, alice, 301); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := l.Send(alice, ContractAccount, 1); !errors.Is(err, ErrReservedAccount) {
		t.Fatalf("expected direct contract send to fail")
	}
	conserved(t, l)
}
