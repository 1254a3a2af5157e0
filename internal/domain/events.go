package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Pushed event names.
const (
	EventNewOrder             = "newOrder"
	EventOrderStatusChanged   = "orderStatusChanged"
	EventPaymentStatusChanged = "paymentStatusChanged"
	EventTableStatusChanged   = "tableStatusChanged"
	EventSessionCheckout      = "sessionCheckout"
)

// Transport-level event names.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

type RoomKind string

const (
	RoomBranch  RoomKind = "branch"
	RoomOrder   RoomKind = "order"
	RoomSession RoomKind = "session"
)

// RoomName is the server-side broadcast group name, e.g. "branch:b1".
func RoomName(kind RoomKind, id string) string { return string(kind) + ":" + id }

func BranchRoom(id string) string  { return RoomName(RoomBranch, id) }
func OrderRoom(id string) string   { return RoomName(RoomOrder, id) }
func SessionRoom(id string) string { return RoomName(RoomSession, id) }

// TableStatusChange is the tableStatusChanged payload.
type TableStatusChange struct {
	TableID        string      `json:"tableId"`
	BranchID       string      `json:"branchId"`
	PreviousStatus TableStatus `json:"previousStatus"`
	NewStatus      TableStatus `json:"newStatus"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Notification is what the storage service publishes after a commit and
// the realtime hub fans out to the listed rooms.
type Notification struct {
	Event      string          `json:"event"`
	Rooms      []string        `json:"rooms"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func NewNotification(event string, payload any, rooms ...string) (Notification, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Notification{Event: event, Rooms: rooms, Data: data, OccurredAt: time.Now().UTC()}, nil
}

var ErrMissingIdentity = errors.New("payload has no identity")

func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order: %w", ErrMissingIdentity)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	return nil
}

func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session: %w", ErrMissingIdentity)
	}
	return nil
}

func (p Payment) Validate() error {
	if p.OrderID == "" && p.SessionID == "" {
		return fmt.Errorf("payment: %w", ErrMissingIdentity)
	}
	return nil
}

func (c TableStatusChange) Validate() error {
	if c.TableID == "" {
		return fmt.Errorf("table status: %w", ErrMissingIdentity)
	}
	if !c.NewStatus.Valid() {
		return fmt.Errorf("table %s: unknown status %q", c.TableID, c.NewStatus)
	}
	return nil
}

type validator interface{ Validate() error }

// Decode unmarshals an event payload and validates it.
func Decode[T validator](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding payload: %w", err)
	}
	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}
