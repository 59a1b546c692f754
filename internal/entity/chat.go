package entity

import "time"

type SenderType string

const (
	SenderCustomer  SenderType = "customer"
	SenderTherapist SenderType = "therapist"
	SenderPlace     SenderType = "place"
	SenderSystem    SenderType = "system"
)

// Valid reports whether the type may be used by a human sender.
func (t SenderType) Valid() bool {
	switch t {
	case SenderCustomer, SenderTherapist, SenderPlace:
		return true
	}
	return false
}

type ChatMessage struct {
	ID              string     `json:"id" db:"id"`
	RoomID          string     `json:"room_id" db:"room_id"`
	SenderID        string     `json:"sender_id" db:"sender_id"`
	SenderType      SenderType `json:"sender_type" db:"sender_type"`
	Content         string     `json:"content" db:"content"`
	IsSystemMessage bool       `json:"is_system_message" db:"is_system_message"`
	DedupKey        string     `json:"-" db:"dedup_key"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

type ViolationType string

const (
	ViolationPhoneDigits ViolationType = "PHONE_NUMBER_DIGITS"
	ViolationPhoneWords  ViolationType = "PHONE_NUMBER_WORDS"
	ViolationWhatsApp    ViolationType = "WHATSAPP_REFERENCE"
	ViolationPhrase      ViolationType = "CONTACT_PHRASE"
	ViolationSocial      ViolationType = "SOCIAL_MEDIA"
	ViolationEmail       ViolationType = "EMAIL_ADDRESS"
	ViolationBank        ViolationType = "BANK_NUMBER"
	ViolationInternalID  ViolationType = "INTERNAL_IDENTIFIER"
	ViolationPayout      ViolationType = "COMMISSION_KEYWORD"
)

// ChatViolation is the audit trail of a blocked message. It only ever
// holds the redacted content.
type ChatViolation struct {
	ID               string          `json:"id" db:"id"`
	RoomID           string          `json:"room_id" db:"room_id"`
	SenderID         string          `json:"sender_id" db:"sender_id"`
	Types            []ViolationType `json:"types" db:"violation_types"`
	SanitizedContent string          `json:"sanitized_content" db:"sanitized_content"`
	ViolationNumber  int             `json:"violation_number" db:"violation_number"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

type Account struct {
	UserID            string     `json:"user_id" db:"user_id"`
	TelegramID        string     `json:"telegram_id,omitempty" db:"telegram_id"`
	ViolationCount    int        `json:"violation_count" db:"violation_count"`
	Restricted        bool       `json:"restricted" db:"restricted"`
	RestrictionReason string     `json:"restriction_reason,omitempty" db:"restriction_reason"`
	RestrictedAt      *time.Time `json:"restricted_at,omitempty" db:"restricted_at"`
	RatingSum         int        `json:"rating_sum" db:"rating_sum"`
	ReviewCount       int        `json:"review_count" db:"review_count"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	RestrictionChatViolations    = "chat_violations"
	RestrictionCommissionOverdue = "commission_overdue"
)

func (a *Account) AverageRating() float64 {
	if a.ReviewCount == 0 {
		return 0
	}
	return float64(a.RatingSum) / float64(a.ReviewCount)
}
