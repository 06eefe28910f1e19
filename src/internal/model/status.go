package model

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var AllStatuses = []Status{StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted}

var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Open statuses hold the tuple uniqueness slot.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusAccepted
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ListFilter string

const (
	FilterReceivedPending ListFilter = "received_pending"
	FilterSent            ListFilter = "sent"
	FilterActive          ListFilter = "active"
	FilterCompleted       ListFilter = "completed"
	FilterAll             ListFilter = "all"
)

func (f ListFilter) Valid() bool {
	switch f {
	case FilterReceivedPending, FilterSent, FilterActive, FilterCompleted, FilterAll:
		return true
	}
	return false
}

// Matches reports whether b belongs in the userID's view for this filter.
func (f ListFilter) Matches(b BarterRequest, userID string) bool {
	switch f {
	case FilterReceivedPending:
		return b.ReceiverID == userID && b.Status == StatusPending
	case FilterSent:
		return b.SenderID == userID
	case FilterActive:
		return b.IsParticipant(userID) && b.Status == StatusAccepted
	case FilterCompleted:
		return b.IsParticipant(userID) && b.Status == StatusCompleted
	case FilterAll:
		return b.IsParticipant(userID)
	}
	return false
}

// BarterType narrows a listing to the caller's side of the barter.
type BarterType string

const (
	TypeSent     BarterType = "sent"
	TypeReceived BarterType = "received"
	TypeAll      BarterType = "all"
)

func (t BarterType) Valid() bool {
	switch t {
	case TypeSent, TypeReceived, TypeAll:
		return true
	}
	return false
}

// BarterView selects a listing. Filter, Status and Type combine with AND;
// an empty Status or Type does not narrow.
type BarterView struct {
	Filter ListFilter
	Status Status
	Type   BarterType
}

type BarterQuery struct {
	UserID string
	Filter ListFilter
	Status Status
	Type   BarterType
	Limit  int
	Offset int
}

func (q BarterQuery) Matches(b BarterRequest) bool {
	if !q.Filter.Matches(b, q.UserID) {
		return false
	}
	if q.Status != "" && b.Status != q.Status {
		return false
	}
	switch q.Type {
	case TypeSent:
		return b.SenderID == q.UserID
	case TypeReceived:
		return b.ReceiverID == q.UserID
	}
	return true
}

type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

type StatusCount struct {
	Role   Role   `db:"role"`
	Status Status `db:"status"`
	Count  int    `db:"count"`
}

type BarterStats struct {
	ByStatus        map[Status]int `json:"by_status"`
	Total           int            `json:"total"`
	Sent            int            `json:"sent"`
	Received        int            `json:"received"`
	PendingReceived int            `json:"pending_received"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type BarterPage struct {
	Barters    []BarterRequest `json:"barters"`
	Pagination Pagination      `json:"pagination"`
}

type ReviewPage struct {
	Reviews       []Review   `json:"reviews"`
	AverageRating float64    `json:"average_rating"`
	Pagination    Pagination `json:"pagination"`
}
