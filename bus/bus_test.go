package bus

import "testing"

func TestPostInvokesHandlersInPriorityOrder(t *testing.T) {
	b := New()
	var order []string

	b.AddHandler("ev", func(any) { order = append(order, "low") }, 0)
	b.AddHandler("ev", func(any) { order = append(order, "high") }, 10)
	b.AddHandler("ev", func(any) { order = append(order, "mid") }, 5)

	b.Post("ev", nil)

	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestPostSamePriorityPreservesRegistrationOrder(t *testing.T) {
	b := New()
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		b.AddHandler("ev", func(any) { order = append(order, i) }, 0)
	}
	b.Post("ev", nil)

	for i, v := range order {
		if v != i {
			t.Fatalf("registration order not preserved: %v", order)
		}
	}
}

func TestPostPassesPayload(t *testing.T) {
	b := New()
	var got any
	b.AddHandler("ev", func(p any) { got = p }, 0)
	b.Post("ev", 42)
	if got != 42 {
		t.Fatalf("got payload %v, want 42", got)
	}
}

func TestPostUnknownEventIsNoOp(t *testing.T) {
	b := New()
	b.Post("nobody-listens", nil) // must not panic
}

func TestHandlerCount(t *testing.T) {
	b := New()
	if b.HandlerCount("ev") != 0 {
		t.Fatal("expected 0 handlers before registration")
	}
	b.AddHandler("ev", func(any) {}, 0)
	b.AddHandler("ev", func(any) {}, 0)
	if b.HandlerCount("ev") != 2 {
		t.Fatalf("expected 2 handlers, got %d", b.HandlerCount("ev"))
	}
}
