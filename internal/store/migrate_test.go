package store

import (
	"bytes"
	"context"
	"testing"

	"rangestream/internal/rangeset"
)

func TestMigrate_CopiesExistingDataToTarget(t *testing.T) {
	s := NewSwitchable(NewUnlimitedMem())
	defer s.Close()

	data := bytes.Repeat([]byte("x"), 1000)
	s.WriteAt(data, 0)

	target := NewUnlimitedMem()
	mig := s.Migrate(context.Background(), target)
	if err := mig.BlockTillDone(context.Background()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	buf := make([]byte, 1000)
	if got := s.ReadAt(buf, 0); got != 1000 || !bytes.Equal(buf, data) {
		t.Fatalf("expected migrated data readable, got %d bytes", got)
	}
}

func TestMigrate_WriterContinuesOnNewBackend(t *testing.T) {
	s := NewSwitchable(NewUnlimitedMem())
	defer s.Close()
	s.WriteAt([]byte("abc"), 0)

	target := NewUnlimitedMem()
	mig := s.Migrate(context.Background(), target)
	if err := mig.BlockTillDone(context.Background()); err != nil {
		t.Fatal(err)
	}

	n, err := s.WriteAt([]byte("def"), 3)
	if err != nil || n != 3 {
		t.Fatalf("expected writer to continue past migrated data, n=%d err=%v", n, err)
	}
	buf := make([]byte, 6)
	s.ReadAt(buf, 0)
	if !bytes.Equal(buf, []byte("abcdef")) {
		t.Fatalf("got %q", buf)
	}
}

func TestMigrate_PrevReleasedOnceReaderPassesIt(t *testing.T) {
	s := NewSwitchable(NewUnlimitedMem())
	defer s.Close()
	s.WriteAt([]byte("0123456789"), 0)

	target := NewUnlimitedMem()
	mig := s.Migrate(context.Background(), target)
	if err := mig.BlockTillDone(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !s.migrating() {
		t.Fatal("expected prev backend to be held immediately after swap")
	}
	s.SetLastReadPos(10)
	if s.migrating() {
		t.Fatal("expected prev backend released once reader passed its last byte")
	}
}

func TestPrioritizeByDistance_OrdersByProximity(t *testing.T) {
	ranges := []rangeset.Range{
		{Start: 100, End: 110},
		{Start: 0, End: 10},
		{Start: 45, End: 55},
	}
	got := prioritizeByDistance(ranges, 50)
	if got[0].Start != 45 {
		t.Fatalf("expected range containing center first, got %v", got)
	}
}

func TestSubtractCovered(t *testing.T) {
	var have rangeset.Set
	have.Add(rangeset.Range{Start: 10, End: 20})
	missing := subtractCovered(rangeset.Range{Start: 0, End: 30}, &have)
	want := []rangeset.Range{{Start: 0, End: 10}, {Start: 20, End: 30}}
	if len(missing) != len(want) {
		t.Fatalf("got %v want %v", missing, want)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("got %v want %v", missing, want)
		}
	}
}
