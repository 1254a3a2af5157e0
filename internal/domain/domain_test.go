package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRefNormalizesBothShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantID   string
		embedded bool
	}{
		{name: "bare id", input: `"t1"`, wantID: "t1"},
		{name: "embedded with id", input: `{"id":"t2","number":4,"capacity":2,"status":"occupied"}`, wantID: "t2", embedded: true},
		{name: "embedded with _id", input: `{"_id":"t3","number":7}`, wantID: "t3", embedded: true},
		{name: "null", input: `null`, wantID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref Ref[Table]
			if err := json.Unmarshal([]byte(tt.input), &ref); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if ref.ID() != tt.wantID {
				t.Errorf("ID() = %q, want %q", ref.ID(), tt.wantID)
			}
			if _, ok := ref.Object(); ok != tt.embedded {
				t.Errorf("Object() ok = %v, want %v", ok, tt.embedded)
			}
		})
	}
}

func TestRefEmbeddedKeepsObject(t *testing.T) {
	var ref Ref[Table]
	if err := json.Unmarshal([]byte(`{"id":"t2","number":4}`), &ref); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	table, ok := ref.Object()
	if !ok || table.Number != 4 {
		t.Fatalf("Object() = %+v, %v", table, ok)
	}
}

func TestRefRejectsObjectWithoutID(t *testing.T) {
	var ref Ref[Branch]
	if err := json.Unmarshal([]byte(`{"name":"north"}`), &ref); err == nil {
		t.Fatal("expected error for embedded object without id")
	}
	if err := json.Unmarshal([]byte(`42`), &ref); err == nil {
		t.Fatal("expected error for number")
	}
}

func TestRefMarshalsBareID(t *testing.T) {
	order := Order{ID: "o1", Table: Embedded("t1", Table{ID: "t1", Number: 3}), Status: OrderPending}
	b, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["tableId"] != "t1" {
		t.Errorf("tableId = %v, want bare id", raw["tableId"])
	}
}

func TestOrderStatusRank(t *testing.T) {
	order := []OrderStatus{OrderPending, OrderPreparing, OrderServed, OrderPaid}
	for i := 1; i < len(order); i++ {
		if !order[i-1].Before(order[i]) {
			t.Errorf("%s should be before %s", order[i-1], order[i])
		}
	}
	if OrderStatus("cooking").Valid() {
		t.Error("unknown status reported valid")
	}
	if !OrderPaid.Terminal() || OrderServed.Terminal() {
		t.Error("only paid is terminal")
	}
}

func TestSessionState(t *testing.T) {
	var s Session
	if s.State() != SessionNone {
		t.Errorf("zero session state = %s", s.State())
	}
	s.ID = "s1"
	if s.State() != SessionActive {
		t.Errorf("state = %s, want active", s.State())
	}
	now := s.CheckInAt
	s.CheckoutAt = &now
	if s.State() != SessionCheckedOut {
		t.Errorf("state = %s, want checked_out", s.State())
	}
}

func TestDecodeValidates(t *testing.T) {
	if _, err := Decode[Order]([]byte(`{"status":"pending"}`)); !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("missing id: err = %v", err)
	}
	if _, err := Decode[TableStatusChange]([]byte(`{"tableId":"t1","newStatus":"dirty"}`)); err == nil {
		t.Error("expected unknown status error")
	}
	if _, err := Decode[Payment]([]byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
	change, err := Decode[TableStatusChange]([]byte(`{"tableId":"t1","previousStatus":"occupied","newStatus":"available","branchId":"b1"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if change.NewStatus != TableAvailable {
		t.Errorf("NewStatus = %s", change.NewStatus)
	}
}

func TestLinesTotal(t *testing.T) {
	lines := []OrderLine{{UnitPrice: 450, Quantity: 2}, {UnitPrice: 100, Quantity: 1}}
	if got := LinesTotal(lines); got != 1000 {
		t.Errorf("LinesTotal = %d, want 1000", got)
	}
}
