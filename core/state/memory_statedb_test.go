package state

import (
	"math/big"
	"testing"

	"github.com/stratorollup/strato/core/types"
)

var (
	addr1 = types.HexToAddress("0x1000000000000000000000000000000000000001")
	addr2 = types.HexToAddress("0x1000000000000000000000000000000000000002")
	key1  = types.HexToHash("0x01")
	key2  = types.HexToHash("0x02")
)

func TestBalanceSnapshotRevert(t *testing.T) {
	s := NewMemoryStateDB()
	s.AddBalance(addr1, big.NewInt(1000))

	snap := s.Snapshot()
	s.SubBalance(addr1, big.NewInt(300))
	s.AddBalance(addr2, big.NewInt(300))
	if s.GetBalance(addr1).Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("balance after transfer = %v", s.GetBalance(addr1))
	}

	s.RevertToSnapshot(snap)
	if s.GetBalance(addr1).Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("balance after revert = %v, want 1000", s.GetBalance(addr1))
	}
	if s.GetBalance(addr2).Sign() != 0 {
		t.Fatalf("recipient balance after revert = %v, want 0", s.GetBalance(addr2))
	}
}

func TestRevertRemovesImplicitlyCreatedAccount(t *testing.T) {
	s := NewMemoryStateDB()
	snap := s.Snapshot()
	s.AddBalance(addr1, big.NewInt(1))
	if !s.Exist(addr1) {
		t.Fatal("account not created by AddBalance")
	}
	s.RevertToSnapshot(snap)
	if s.Exist(addr1) {
		t.Fatal("implicitly created account survived revert")
	}
}

func TestNestedSnapshots(t *testing.T) {
	s := NewMemoryStateDB()
	s.SetNonce(addr1, 1)

	outer := s.Snapshot()
	s.SetNonce(addr1, 2)
	inner := s.Snapshot()
	s.SetNonce(addr1, 3)

	s.RevertToSnapshot(inner)
	if got := s.GetNonce(addr1); got != 2 {
		t.Fatalf("nonce after inner revert = %d, want 2", got)
	}
	s.RevertToSnapshot(outer)
	if got := s.GetNonce(addr1); got != 1 {
		t.Fatalf("nonce after outer revert = %d, want 1", got)
	}
}

func TestStorageRevertRestoresDirtyValue(t *testing.T) {
	s := NewMemoryStateDB()
	v1 := types.HexToHash("0xaa")
	v2 := types.HexToHash("0xbb")

	s.SetState(addr1, key1, v1)
	snap := s.Snapshot()
	s.SetState(addr1, key1, v2)
	if s.GetState(addr1, key1) != v2 {
		t.Fatal("overwrite not visible")
	}
	s.RevertToSnapshot(snap)
	if got := s.GetState(addr1, key1); got != v1 {
		t.Fatalf("storage after revert = %s, want %s", got, v1)
	}
}

func TestStorageCommittedVsDirty(t *testing.T) {
	s := NewMemoryStateDB()
	v := types.HexToHash("0xcc")
	s.SetState(addr1, key1, v)
	if s.GetCommittedState(addr1, key1) != (types.Hash{}) {
		t.Fatal("dirty write leaked into committed state")
	}
	if _, err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if s.GetCommittedState(addr1, key1) != v {
		t.Fatal("committed state missing after Commit")
	}
}

func TestCodeRevert(t *testing.T) {
	s := NewMemoryStateDB()
	snap := s.Snapshot()
	s.SetCode(addr1, []byte{0x60, 0x00})
	if s.GetCodeSize(addr1) != 2 {
		t.Fatal("code not set")
	}
	s.RevertToSnapshot(snap)
	if s.GetCode(addr1) != nil {
		t.Fatal("code survived revert")
	}
}

func TestAccessListRevert(t *testing.T) {
	s := NewMemoryStateDB()
	s.AddAddressToAccessList(addr1)

	snap := s.Snapshot()
	s.AddSlotToAccessList(addr2, key1)
	if ok, slotOk := s.SlotInAccessList(addr2, key1); !ok || !slotOk {
		t.Fatal("slot not warm after add")
	}
	s.RevertToSnapshot(snap)
	if s.AddressInAccessList(addr2) {
		t.Fatal("address warm after revert")
	}
	if !s.AddressInAccessList(addr1) {
		t.Fatal("pre-snapshot address lost on revert")
	}
}

func TestLogsAndRefundRevert(t *testing.T) {
	s := NewMemoryStateDB()
	txHash := types.HexToHash("0xdead")

	snap := s.Snapshot()
	s.AddLog(&types.Log{Address: addr1, TxHash: txHash})
	s.AddRefund(500)
	if len(s.GetLogs(txHash)) != 1 || s.GetRefund() != 500 {
		t.Fatal("log or refund not recorded")
	}
	s.RevertToSnapshot(snap)
	if len(s.GetLogs(txHash)) != 0 {
		t.Fatal("log survived revert")
	}
	if s.GetRefund() != 0 {
		t.Fatal("refund survived revert")
	}
}

func TestCommitDeterministicRoot(t *testing.T) {
	balances := map[types.Address]int64{addr1: 1000, addr2: 2000}
	build := func(order []types.Address) types.Hash {
		s := NewMemoryStateDB()
		for _, a := range order {
			s.AddBalance(a, big.NewInt(balances[a]))
		}
		root, err := s.Commit()
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return root
	}
	r1 := build([]types.Address{addr1, addr2})
	r2 := build([]types.Address{addr2, addr1})
	if r1 != r2 {
		t.Fatal("commit root depends on account insertion order")
	}
}

func TestCommitEmptyState(t *testing.T) {
	s := NewMemoryStateDB()
	root, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root != types.EmptyRootHash {
		t.Fatalf("empty state root = %s, want EmptyRootHash", root)
	}
}
