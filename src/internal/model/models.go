package model

import "time"

type Skill struct {
	SkillID  string `db:"skill_id" json:"skill_id"`
	OwnerID  string `db:"owner_id" json:"owner_id"`
	Title    string `db:"title" json:"title"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

type CounterOffer struct {
	Message        string    `json:"message"`
	OfferedSkillID string    `json:"offered_skill_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type BarterRequest struct {
	ID               string        `json:"id"`
	SenderID         string        `json:"sender_id"`
	ReceiverID       string        `json:"receiver_id"`
	OfferedSkillID   string        `json:"offered_skill_id"`
	RequestedSkillID string        `json:"requested_skill_id"`
	Message          string        `json:"message,omitempty"`
	Status           Status        `json:"status"`
	RejectionReason  *string       `json:"rejection_reason,omitempty"`
	CounterOffer     *CounterOffer `json:"counter_offer,omitempty"`
	ConversationRef  *string       `json:"conversation_ref,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (b BarterRequest) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.SenderID || userID == b.ReceiverID)
}

// Counterpart returns the other participant, or "" when userID is not one.
func (b BarterRequest) Counterpart(userID string) string {
	switch userID {
	case b.SenderID:
		return b.ReceiverID
	case b.ReceiverID:
		return b.SenderID
	default:
		return ""
	}
}

// TupleKey identifies the unordered (sender, offered, receiver, requested)
// tuple. At most one open barter may exist per key.
func (b BarterRequest) TupleKey() string {
	a := b.SenderID + ":" + b.OfferedSkillID
	c := b.ReceiverID + ":" + b.RequestedSkillID
	if a > c {
		a, c = c, a
	}
	return a + "|" + c
}

type Review struct {
	ID         string    `db:"id" json:"id"`
	BarterID   string    `db:"barter_id" json:"barter_id"`
	ReviewerID string    `db:"reviewer_id" json:"reviewer_id"`
	RevieweeID string    `db:"reviewee_id" json:"reviewee_id"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type ReviewEligibility struct {
	Eligible        bool    `json:"eligible"`
	AlreadyReviewed bool    `json:"already_reviewed"`
	Review          *Review `json:"review,omitempty"`
}

type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonFakeSkill     ReportReason = "fake_skill"
	ReasonHarassment    ReportReason = "harassment"
	ReasonScam          ReportReason = "scam"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonFakeSkill, ReasonHarassment, ReasonScam, ReasonInappropriate, ReasonOther:
		return true
	}
	return false
}

type Report struct {
	ID              string       `db:"id" json:"id"`
	BarterID        string       `db:"barter_id" json:"barter_id"`
	ReportingUserID string       `db:"reporting_user_id" json:"reporting_user_id"`
	ReportedUserID  string       `db:"reported_user_id" json:"reported_user_id"`
	Reason          ReportReason `db:"reason" json:"reason"`
	Description     string       `db:"description" json:"description"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserA     string    `db:"user_a" json:"user_a"`
	UserB     string    `db:"user_b" json:"user_b"`
	BarterID  string    `db:"barter_id" json:"barter_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ParticipantKey orders the two users so a pair maps to one conversation.
func ParticipantKey(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

const (
	EventBarterCreated   = "barter.created"
	EventBarterAccepted  = "barter.accepted"
	EventBarterRejected  = "barter.rejected"
	EventBarterCountered = "barter.countered"
	EventBarterCancelled = "barter.cancelled"
	EventBarterCompleted = "barter.completed"
	EventReviewReceived  = "review.received"
)

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Event     string            `json:"event"`
	Payload   map[string]string `json:"payload,omitempty"`
	IsRead    bool              `json:"is_read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type NotificationFeed struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

type AppError string

func (e AppError) Error() string { return string(e) }

const (
	ErrNotFound  = AppError("NOT_FOUND")
	ErrDuplicate = AppError("DUPLICATE")
)
