package model

import "testing"

func TestMovementDirection(t *testing.T) {
	up := MovementEvent{ReferencePrice: 2000, CurrentPrice: 2050}
	if up.Direction() != 1 {
		t.Fatalf("up move direction = %d, want 1", up.Direction())
	}
	down := MovementEvent{ReferencePrice: 2000, CurrentPrice: 1950}
	if down.Direction() != -1 {
		t.Fatalf("down move direction = %d, want -1", down.Direction())
	}
	flat := MovementEvent{ReferencePrice: 2000, CurrentPrice: 2000}
	if flat.Direction() != 0 {
		t.Fatalf("flat move direction = %d, want 0", flat.Direction())
	}
}
