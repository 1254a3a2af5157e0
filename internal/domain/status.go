package domain

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

func (s TableStatus) Valid() bool { return s == TableAvailable || s == TableOccupied }

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderServed    OrderStatus = "served"
	OrderPaid      OrderStatus = "paid"
)

// Rank orders statuses pending < preparing < served < paid. Unknown is 0.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderPending:
		return 1
	case OrderPreparing:
		return 2
	case OrderServed:
		return 3
	case OrderPaid:
		return 4
	default:
		return 0
	}
}

func (s OrderStatus) Valid() bool { return s.Rank() > 0 }

func (s OrderStatus) Before(other OrderStatus) bool { return s.Rank() < other.Rank() }

func (s OrderStatus) Terminal() bool { return s == OrderPaid }

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueSeated    QueueStatus = "seated"
	QueueCancelled QueueStatus = "cancelled"
)

func (s QueueStatus) Valid() bool {
	return s == QueueWaiting || s == QueueSeated || s == QueueCancelled
}

type SessionState string

const (
	SessionNone       SessionState = "none"
	SessionActive     SessionState = "active"
	SessionCheckedOut SessionState = "checked_out"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)
