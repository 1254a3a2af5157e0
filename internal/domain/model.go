package domain

import "time"

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MenuItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"` // minor units
	Category string `json:"category,omitempty"`
}

type Table struct {
	ID       string      `json:"id"`
	Branch   Ref[Branch] `json:"branchId"`
	Number   int         `json:"number"`
	Capacity int         `json:"capacity"`
	Status   TableStatus `json:"status"`

	// Occupancy-derived fields, cleared when the table becomes available.
	ActiveSessionID string     `json:"activeSessionId,omitempty"`
	CheckedInAt     *time.Time `json:"checkedInAt,omitempty"`
	CustomerLabel   string     `json:"customerLabel,omitempty"`
	OrderSummary    string     `json:"orderSummary,omitempty"`
}

// ClearOccupancy drops everything that only makes sense while seated.
func (t *Table) ClearOccupancy() {
	t.ActiveSessionID = ""
	t.CheckedInAt = nil
	t.CustomerLabel = ""
	t.OrderSummary = ""
}

type Member struct {
	ClientID string    `json:"clientId"`
	Label    string    `json:"label"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Session struct {
	ID         string      `json:"id"`
	Branch     Ref[Branch] `json:"branchId"`
	Table      Ref[Table]  `json:"tableId"`
	JoinCode   string      `json:"joinCode"`
	Members    []Member    `json:"members"`
	CheckInAt  time.Time   `json:"checkInAt"`
	CheckoutAt *time.Time  `json:"checkoutAt,omitempty"`
	OrderIDs   []string    `json:"orderIds"`
}

func (s Session) Active() bool { return s.CheckoutAt == nil }

func (s Session) State() SessionState {
	if s.ID == "" {
		return SessionNone
	}
	if s.Active() {
		return SessionActive
	}
	return SessionCheckedOut
}

func (s Session) HasMember(clientID string) bool {
	for _, m := range s.Members {
		if m.ClientID == clientID {
			return true
		}
	}
	return false
}

type OrderLine struct {
	MenuItem  Ref[MenuItem] `json:"menuItemId"`
	Name      string        `json:"name"`
	UnitPrice int64         `json:"unitPrice"`
	Quantity  int           `json:"quantity"`
	Note      string        `json:"note,omitempty"`
	Status    OrderStatus   `json:"status"`
}

type Order struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Table       Ref[Table]  `json:"tableId"`
	Branch      Ref[Branch] `json:"branchId"`
	ClientID    string      `json:"clientId"`
	DisplayName string      `json:"displayName"`
	Lines       []OrderLine `json:"lines"`
	Total       int64       `json:"total"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Clone copies the line slice so callers can mutate the result freely.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}

// LinesTotal sums unit price times quantity over all lines.
func LinesTotal(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total
}

type Payment struct {
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	TableID   string `json:"tableId"`
}

type CartItem struct {
	MenuItem MenuItem `json:"menuItem"`
	Quantity int      `json:"quantity"`
	Note     string   `json:"note,omitempty"`
}

type QueueItem struct {
	ID          string      `json:"id"`
	BranchID    string      `json:"branchId"`
	PartyName   string      `json:"partyName"`
	Contact     string      `json:"contact"`
	PartySize   int         `json:"partySize"`
	RequestedAt time.Time   `json:"requestedAt"`
	Status      QueueStatus `json:"status"`
}

// StatusLogEntry is one row of an order's status history.
type StatusLogEntry struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changedBy"`
	ChangedAt time.Time   `json:"changedAt"`
	Notes     string      `json:"notes,omitempty"`
}
