package rangeset

import "testing"

func TestSet_AddCoalesces(t *testing.T) {
	var s Set
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 10, End: 20})
	s.Add(Range{Start: 30, End: 40})

	got := s.Ranges()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(got), got)
	}
	if got[0] != (Range{Start: 0, End: 20}) {
		t.Fatalf("first range = %v, want [0,20)", got[0])
	}
	if got[1] != (Range{Start: 30, End: 40}) {
		t.Fatalf("second range = %v, want [30,40)", got[1])
	}
}

func TestSet_AddOverlapping(t *testing.T) {
	var s Set
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 5, End: 15})
	got := s.Ranges()
	if len(got) != 1 || got[0] != (Range{Start: 0, End: 15}) {
		t.Fatalf("got %v", got)
	}
}

func TestSet_Contains(t *testing.T) {
	var s Set
	s.Add(Range{Start: 10, End: 20})
	if s.Contains(5) {
		t.Fatal("should not contain 5")
	}
	if !s.Contains(10) || !s.Contains(19) {
		t.Fatal("should contain endpoints of [10,20)")
	}
	if s.Contains(20) {
		t.Fatal("should not contain end (exclusive)")
	}
}

func TestSet_GaplessFromTill(t *testing.T) {
	var s Set
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 10, End: 20})
	if !s.GaplessFromTill(0, 20) {
		t.Fatal("expected gapless coverage")
	}
	s.Clear()
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 15, End: 20})
	if s.GaplessFromTill(0, 20) {
		t.Fatal("expected gap between 10 and 15")
	}
}

func TestSet_Reset(t *testing.T) {
	var s Set
	s.Add(Range{Start: 0, End: 10})
	s.Reset(Range{Start: 5, End: 7})
	got := s.Ranges()
	if len(got) != 1 || got[0] != (Range{Start: 5, End: 7}) {
		t.Fatalf("got %v", got)
	}
}

func TestSet_Last(t *testing.T) {
	var s Set
	if _, ok := s.Last(); ok {
		t.Fatal("empty set should have no last")
	}
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 20, End: 30})
	last, ok := s.Last()
	if !ok || last != (Range{Start: 20, End: 30}) {
		t.Fatalf("got %v", last)
	}
}

func TestSet_Intersect(t *testing.T) {
	var s Set
	s.Add(Range{Start: 0, End: 10})
	s.Add(Range{Start: 20, End: 30})
	got := s.Intersect(Range{Start: 5, End: 25})
	want := []Range{{Start: 5, End: 10}, {Start: 20, End: 25}}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestSet_Covering(t *testing.T) {
	var s Set
	s.Add(Range{Start: 5, End: 15})
	r, ok := s.Covering(10)
	if !ok || r != (Range{Start: 5, End: 15}) {
		t.Fatalf("got %v, %v", r, ok)
	}
	if _, ok := s.Covering(20); ok {
		t.Fatal("should not cover 20")
	}
}
