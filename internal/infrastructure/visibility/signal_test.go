package visibility

import "testing"

func TestSignalNotifiesOnChangeOnly(t *testing.T) {
	s := New(true)
	ch, unsubscribe := s.Subscribe()

	s.Set(true)
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	default:
	}

	s.Set(false)
	s.Set(true)
	s.Set(false)
	if v := <-ch; v {
		t.Fatalf("expected latest value false")
	}
	if s.Visible() {
		t.Fatalf("expected hidden")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	s.Set(true)
}

func TestAlwaysVisible(t *testing.T) {
	var v AlwaysVisible
	ch, stop := v.Subscribe()
	defer stop()
	if !v.Visible() || ch != nil {
		t.Fatalf("unexpected always-visible behaviour")
	}
}
