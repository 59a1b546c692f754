package service

import (
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/shopspring/decimal"
)

// Services bundles the application services built over one store.
type Services struct {
	Booking    BookingService
	Commission CommissionService
	Chat       ChatService
	Review     ReviewService
	Account    AccountService
	Notifier   Notifier
}

// Deps are the collaborators shared by every service. Queue, Deliverer
// and Pusher may be nil.
type Deps struct {
	Store     *database.Store
	Config    *config.Config
	Queue     TaskPublisher
	Deliverer Deliverer
	Pusher    Pusher
	Clock     Clock
}

func NewServices(d Deps) *Services {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := d.Config

	notifier := NewNotifier(d.Store.Notifications, d.Queue, d.Deliverer, clock)
	schedule := NewSchedule(cfg.Commission)

	chat := NewChatService(d.Store.Chat, d.Store.Accounts, notifier, d.Pusher, cfg.Chat, clock)
	reviews := NewReviewService(d.Store, chat, notifier, cfg.Review, cfg.Discount, clock)
	commissions := NewCommissionService(
		d.Store.Commissions,
		d.Store.Accounts,
		notifier,
		d.Queue,
		schedule,
		decimal.NewFromInt(cfg.Commission.ReactivationFee),
		cfg.Worker.BatchSize,
		clock,
	)
	bookings := NewBookingService(
		d.Store,
		chat,
		reviews,
		commissions,
		notifier,
		d.Queue,
		cfg.Booking.ResponseWindow,
		schedule,
		NewRates(cfg.Commission),
		cfg.Worker.BatchSize,
		clock,
	)

	return &Services{
		Booking:    bookings,
		Commission: commissions,
		Chat:       chat,
		Review:     reviews,
		Account:    NewAccountService(d.Store.Accounts, d.Store.Notifications, clock),
		Notifier:   notifier,
	}
}
