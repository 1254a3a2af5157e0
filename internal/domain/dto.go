package domain

type CreateSessionRequest struct {
	BranchID string `json:"branchId"`
	TableID  string `json:"tableId"`
}

type JoinSessionRequest struct {
	JoinCode string `json:"joinCode"`
	ClientID string `json:"clientId"`
	Label    string `json:"label"`
}

type OrderLineInput struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unitPrice"`
	Quantity   int    `json:"quantity"`
	Note       string `json:"note,omitempty"`
}

type CreateOrderRequest struct {
	SessionID   string           `json:"sessionId"`
	BranchID    string           `json:"branchId"`
	TableID     string           `json:"tableId"`
	ClientID    string           `json:"clientId"`
	DisplayName string           `json:"displayName"`
	Lines       []OrderLineInput `json:"lines"`
	Total       int64            `json:"total"`
}

type UpdateOrderStatusRequest struct {
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changedBy,omitempty"`
}

type UpdateLineStatusRequest struct {
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changedBy,omitempty"`
}

type UpdateTableStatusRequest struct {
	Status TableStatus `json:"status"`
}

type QueueItemInput struct {
	BranchID  string      `json:"branchId"`
	PartyName string      `json:"partyName"`
	Contact   string      `json:"contact"`
	PartySize int         `json:"partySize"`
	Status    QueueStatus `json:"status,omitempty"`
}
