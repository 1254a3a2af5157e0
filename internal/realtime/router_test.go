package realtime

import (
	"encoding/json"
	"reflect"
	"testing"

	"tableside/internal/domain"
)

func TestDispatchOrder(t *testing.T) {
	r := NewRouter(nil)
	var got []int
	r.On("newOrder", func(Event) { got = append(got, 1) })
	r.On("newOrder", func(Event) { got = append(got, 2) })
	r.On("other", func(Event) { got = append(got, 99) })

	r.Dispatch(Event{Name: "newOrder"})

	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("handlers ran as %v, want [1 2]", got)
	}
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	r := NewRouter(nil)
	var second *Subscription
	calls := 0
	r.On("e", func(Event) { second.Unsubscribe() })
	second = r.On("e", func(Event) { calls++ })

	r.Dispatch(Event{Name: "e"})
	r.Dispatch(Event{Name: "e"})

	if calls != 0 {
		t.Fatalf("removed handler ran %d times", calls)
	}
	if n := r.HandlerCount("e"); n != 1 {
		t.Fatalf("HandlerCount = %d, want 1", n)
	}
	second.Unsubscribe()
}

func TestHandlerPanicIsContained(t *testing.T) {
	r := NewRouter(nil)
	ran := false
	r.On("e", func(Event) { panic("boom") })
	r.On("e", func(Event) { ran = true })

	r.Dispatch(Event{Name: "e"})

	if !ran {
		t.Fatal("handler after a panicking one did not run")
	}
}

func TestRoomScopedHandler(t *testing.T) {
	r := NewRouter(nil)
	hits := 0
	r.on("orderStatusChanged", "order:o1", func(Event) { hits++ })

	r.Dispatch(Event{Name: "orderStatusChanged", Rooms: []string{"order:o2"}})
	r.Dispatch(Event{Name: "orderStatusChanged", Rooms: []string{"branch:b1", "order:o1"}})
	r.Dispatch(Event{Name: "orderStatusChanged"})

	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestClear(t *testing.T) {
	r := NewRouter(nil)
	r.On("a", func(Event) {})
	r.On("b", func(Event) {})
	r.Clear()
	if r.HandlerCount("a")+r.HandlerCount("b") != 0 {
		t.Fatal("handlers survived Clear")
	}
}

func TestDecoded(t *testing.T) {
	var got []domain.Order
	h := Decoded(nil, func(o domain.Order) { got = append(got, o) })

	valid, _ := json.Marshal(domain.Order{ID: "o1", Status: domain.OrderPreparing})
	tests := []struct {
		name string
		data json.RawMessage
	}{
		{"valid", valid},
		{"not json", json.RawMessage(`{`)},
		{"missing id", json.RawMessage(`{"status":"pending"}`)},
		{"unknown status", json.RawMessage(`{"id":"o2","status":"cold"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h(Event{Name: domain.EventOrderStatusChanged, Data: tt.data})
		})
	}

	if len(got) != 1 || got[0].ID != "o1" {
		t.Fatalf("delivered %+v, want only o1", got)
	}
}
