package lifecycle

import "testing"

func TestLifecycle_Draining(t *testing.T) {
	var nilLC *Lifecycle
	nilLC.SetDraining(true)
	if nilLC.IsDraining() {
		t.Fatalf("nil lifecycle should never drain")
	}

	l := &Lifecycle{}
	if l.IsDraining() {
		t.Fatalf("zero lifecycle should not drain")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatalf("SetDraining(true) not observed")
	}
	l.SetDraining(false)
	if l.IsDraining() {
		t.Fatalf("SetDraining(false) not observed")
	}
}
