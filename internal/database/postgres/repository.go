package repository

import (
	"database/sql"

	"github.com/ds124wfegd/spa-booking/internal/database"
)

// NewStore wires every PostgreSQL repository to one connection pool.
func NewStore(db *sql.DB) *database.Store {
	return &database.Store{
		Bookings:      NewBookingRepository(db),
		Commissions:   NewCommissionRepository(db),
		Accounts:      NewAccountRepository(db),
		Chat:          NewChatRepository(db),
		Reviews:       NewReviewRepository(db),
		Discounts:     NewDiscountRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}
