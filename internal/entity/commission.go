package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionState string

const (
	CommissionPending CommissionState = "pending"
	CommissionPaid    CommissionState = "paid"
	CommissionOverdue CommissionState = "overdue"
)

// ReminderStage is the escalation level of an unpaid commission.
// Stages are ordered, a later stage never goes back to an earlier one.
type ReminderStage int

const (
	StageNone ReminderStage = iota
	StageReminder
	StageUrgent
	StageFinal
	StageOverdue
)

var stageNames = map[ReminderStage]string{
	StageNone:     "none",
	StageReminder: "reminder",
	StageUrgent:   "urgent",
	StageFinal:    "final",
	StageOverdue:  "overdue",
}

func (s ReminderStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

func ParseReminderStage(name string) ReminderStage {
	for stage, n := range stageNames {
		if n == name {
			return stage
		}
	}
	return StageNone
}

func (s ReminderStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ReminderStage) UnmarshalText(b []byte) error {
	*s = ParseReminderStage(string(b))
	return nil
}

type CommissionRecord struct {
	BookingID       string          `json:"booking_id" db:"booking_id"`
	ProviderID      string          `json:"provider_id" db:"provider_id"`
	Rate            decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	AmountDue       decimal.Decimal `json:"amount_due" db:"amount_due"`
	ReactivationFee decimal.Decimal `json:"reactivation_fee" db:"reactivation_fee"`
	CompletedAt     time.Time       `json:"completed_at" db:"completed_at"`
	DueAt           time.Time       `json:"due_at" db:"due_at"`
	State           CommissionState `json:"state" db:"state"`
	ReminderStage   ReminderStage   `json:"reminder_stage" db:"reminder_stage"`
	ProofURL        string          `json:"proof_url,omitempty" db:"proof_url"`
	PaidAt          *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	OverdueAt       *time.Time      `json:"overdue_at,omitempty" db:"overdue_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// TotalDue is the commission plus the reactivation fee once overdue.
func (c *CommissionRecord) TotalDue() decimal.Decimal {
	return c.AmountDue.Add(c.ReactivationFee)
}

// CommissionStatus is what the on-demand check returns to callers.
type CommissionStatus struct {
	Record *CommissionRecord `json:"record"`
	Stage  ReminderStage     `json:"stage"`
	// TimeLeft is zero once the deadline has passed.
	TimeLeft time.Duration `json:"time_left"`
}
