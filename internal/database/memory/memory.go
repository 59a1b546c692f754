// Package memory is an in-process implementation of the repositories.
// A single mutex serializes every operation, which gives each conditional
// write the same all-or-nothing behavior as the PostgreSQL statements.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
	"github.com/shopspring/decimal"
)

type state struct {
	mu sync.Mutex

	bookings      map[string]*entity.Booking
	rooms         map[string]*entity.ChatRoom
	roomByBooking map[string]string
	messages      map[string][]*entity.ChatMessage
	dedupKeys     map[string]struct{}
	violations    []*entity.ChatViolation
	accounts      map[string]*entity.Account
	commissions   map[string]*entity.CommissionRecord
	reviews       map[string]*entity.Review
	reviewByBook  map[string]string
	links         map[string]*entity.ReviewLink
	linkByBooking map[string]string
	discounts     map[string]*entity.DiscountCode
	discountByRev map[string]string
	notifications []*entity.Notification
}

// NewStore returns a fresh, empty store.
func NewStore() *database.Store {
	s := &state{
		bookings:      make(map[string]*entity.Booking),
		rooms:         make(map[string]*entity.ChatRoom),
		roomByBooking: make(map[string]string),
		messages:      make(map[string][]*entity.ChatMessage),
		dedupKeys:     make(map[string]struct{}),
		accounts:      make(map[string]*entity.Account),
		commissions:   make(map[string]*entity.CommissionRecord),
		reviews:       make(map[string]*entity.Review),
		reviewByBook:  make(map[string]string),
		links:         make(map[string]*entity.ReviewLink),
		linkByBooking: make(map[string]string),
		discounts:     make(map[string]*entity.DiscountCode),
		discountByRev: make(map[string]string),
	}
	return &database.Store{
		Bookings:      (*bookings)(s),
		Commissions:   (*commissions)(s),
		Accounts:      (*accounts)(s),
		Chat:          (*chat)(s),
		Reviews:       (*reviews)(s),
		Discounts:     (*discounts)(s),
		Notifications: (*notifications)(s),
	}
}

func copyBooking(b *entity.Booking) *entity.Booking {
	c := *b
	return &c
}

func copyCommission(r *entity.CommissionRecord) *entity.CommissionRecord {
	c := *r
	return &c
}

func copyAccount(a *entity.Account) *entity.Account {
	c := *a
	return &c
}

func copyDiscount(d *entity.DiscountCode) *entity.DiscountCode {
	c := *d
	return &c
}

// account returns the stored account, creating it on first write.
func (s *state) account(userID string) *entity.Account {
	a, ok := s.accounts[userID]
	if !ok {
		a = &entity.Account{UserID: userID}
		s.accounts[userID] = a
	}
	return a
}

type bookings state

func (r *bookings) Create(_ context.Context, booking *entity.Booking, room *entity.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		return entity.Validation("booking %s already exists", booking.ID)
	}
	for _, b := range r.bookings {
		if b.CustomerID == booking.CustomerID && b.ProviderID == booking.ProviderID && b.Status.IsActive() {
			return entity.ErrDuplicateBooking
		}
	}
	r.bookings[booking.ID] = copyBooking(booking)
	rc := *room
	r.rooms[room.ID] = &rc
	r.roomByBooking[booking.ID] = room.ID
	return nil
}

func (r *bookings) GetByID(_ context.Context, id string) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (r *bookings) GetByProvider(_ context.Context, providerID string, limit int) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.ProviderID == providerID }, limit), nil
}

func (r *bookings) GetByCustomer(_ context.Context, customerID string, limit int) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.CustomerID == customerID }, limit), nil
}

func (r *bookings) filter(match func(*entity.Booking) bool, limit int) []*entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Booking
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *bookings) Transition(_ context.Context, t entity.Transition) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return (*state)(r).transition(t)
}

func (s *state) transition(t entity.Transition) (*entity.Booking, error) {
	b, ok := s.bookings[t.BookingID]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	if err := t.Check(b); err != nil {
		return nil, err
	}
	t.Apply(b)
	return copyBooking(b), nil
}

func (r *bookings) Complete(_ context.Context, t entity.Transition, build func(*entity.Booking) *entity.CommissionRecord) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := (*state)(r).transition(t)
	if err != nil {
		return nil, err
	}
	if rec := build(copyBooking(b)); rec != nil {
		if _, exists := r.commissions[rec.BookingID]; !exists {
			r.commissions[rec.BookingID] = copyCommission(rec)
		}
	}
	return b, nil
}

func (r *bookings) ListOverduePending(_ context.Context, now time.Time, limit int) ([]*entity.Booking, error) {
	out := r.filter(func(b *entity.Booking) bool { return b.ResponseOverdue(now) }, 0)
	sort.Slice(out, func(i, j int) bool { return out[i].ResponseDeadline.Before(out[j].ResponseDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type commissions state

func (r *commissions) GetByBookingID(_ context.Context, bookingID string) (*entity.CommissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.commissions[bookingID]
	if !ok {
		return nil, entity.ErrCommissionNotFound
	}
	return copyCommission(rec), nil
}

func (r *commissions) ListByState(_ context.Context, st entity.CommissionState, limit int) ([]*entity.CommissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.CommissionRecord
	for _, rec := range r.commissions {
		if rec.State == st {
			out = append(out, copyCommission(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *commissions) AdvanceStage(_ context.Context, bookingID string, from, to entity.ReminderStage, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.commissions[bookingID]
	if !ok || rec.State != entity.CommissionPending || rec.ReminderStage != from {
		return false, nil
	}
	rec.ReminderStage = to
	rec.UpdatedAt = at
	return true, nil
}

func (r *commissions) MarkOverdue(_ context.Context, bookingID string, fee decimal.Decimal, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.commissions[bookingID]
	if !ok || rec.State != entity.CommissionPending {
		return false, nil
	}
	rec.State = entity.CommissionOverdue
	rec.ReminderStage = entity.StageOverdue
	rec.ReactivationFee = fee
	rec.OverdueAt = &at
	rec.UpdatedAt = at
	return true, nil
}

func (r *commissions) MarkPaid(_ context.Context, bookingID, proofURL string, at time.Time) (*entity.CommissionRecord, entity.CommissionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.commissions[bookingID]
	if !ok {
		return nil, "", entity.ErrCommissionNotFound
	}
	previous := rec.State
	if previous == entity.CommissionPaid {
		return nil, previous, entity.ErrCommissionSettled
	}
	rec.State = entity.CommissionPaid
	rec.ProofURL = proofURL
	rec.PaidAt = &at
	rec.UpdatedAt = at
	return copyCommission(rec), previous, nil
}

func (r *commissions) CountOverdueByProvider(_ context.Context, providerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.commissions {
		if rec.ProviderID == providerID && rec.State == entity.CommissionOverdue {
			n++
		}
	}
	return n, nil
}

type accounts state

func (r *accounts) Get(_ context.Context, userID string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[userID]
	if !ok {
		return &entity.Account{UserID: userID}, nil
	}
	return copyAccount(a), nil
}

func (r *accounts) SetTelegramID(_ context.Context, userID, telegramID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := (*state)(r).account(userID)
	a.TelegramID = telegramID
	a.UpdatedAt = at
	return nil
}

func (r *accounts) IncrementViolations(_ context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := (*state)(r).account(userID)
	a.ViolationCount++
	a.UpdatedAt = at
	return a.ViolationCount, nil
}

func (r *accounts) Restrict(_ context.Context, userID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := (*state)(r).account(userID)
	if a.Restricted {
		return false, nil
	}
	a.Restricted = true
	a.RestrictionReason = reason
	a.RestrictedAt = &at
	a.UpdatedAt = at
	return true, nil
}

func (r *accounts) ClearRestriction(_ context.Context, userID, reason string, resetViolations bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[userID]
	if !ok || !a.Restricted || (reason != "" && a.RestrictionReason != reason) {
		return false, nil
	}
	a.Restricted = false
	a.RestrictionReason = ""
	a.RestrictedAt = nil
	if resetViolations {
		a.ViolationCount = 0
	}
	a.UpdatedAt = at
	return true, nil
}

func (r *accounts) AddRating(_ context.Context, userID string, rating int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := (*state)(r).account(userID)
	a.RatingSum += rating
	a.ReviewCount++
	a.UpdatedAt = at
	return nil
}

type chat state

func (r *chat) GetRoom(_ context.Context, roomID string) (*entity.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, entity.ErrRoomNotFound
	}
	c := *room
	return &c, nil
}

func (r *chat) GetRoomByBooking(ctx context.Context, bookingID string) (*entity.ChatRoom, error) {
	r.mu.Lock()
	roomID, ok := r.roomByBooking[bookingID]
	r.mu.Unlock()
	if !ok {
		return nil, entity.ErrRoomNotFound
	}
	return r.GetRoom(ctx, roomID)
}

func (r *chat) InsertMessage(_ context.Context, msg *entity.ChatMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[msg.RoomID]; !ok {
		return false, entity.ErrRoomNotFound
	}
	if msg.DedupKey != "" {
		if _, taken := r.dedupKeys[msg.DedupKey]; taken {
			return false, nil
		}
		r.dedupKeys[msg.DedupKey] = struct{}{}
	}
	c := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &c)
	return true, nil
}

func (r *chat) ListMessages(_ context.Context, roomID string, limit int) ([]*entity.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.messages[roomID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*entity.ChatMessage, len(all))
	for i, m := range all {
		c := *m
		out[i] = &c
	}
	return out, nil
}

func (r *chat) InsertViolation(_ context.Context, v *entity.ChatViolation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *v
	c.Types = append([]entity.ViolationType(nil), v.Types...)
	r.violations = append(r.violations, &c)
	return nil
}

type reviews state

func (r *reviews) CreateIfAbsent(_ context.Context, review *entity.Review) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reviewByBook[review.BookingID]; exists {
		return false, nil
	}
	c := *review
	r.reviews[review.ID] = &c
	r.reviewByBook[review.BookingID] = review.ID
	return true, nil
}

func (r *reviews) GetByID(_ context.Context, id string) (*entity.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	review, ok := r.reviews[id]
	if !ok {
		return nil, entity.ErrReviewNotFound
	}
	c := *review
	return &c, nil
}

func (r *reviews) GetByBookingID(ctx context.Context, bookingID string) (*entity.Review, error) {
	r.mu.Lock()
	id, ok := r.reviewByBook[bookingID]
	r.mu.Unlock()
	if !ok {
		return nil, entity.ErrReviewNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *reviews) CreateLinkIfAbsent(_ context.Context, link *entity.ReviewLink) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[link.Token]; exists {
		return false, nil
	}
	if _, exists := r.linkByBooking[link.BookingID]; exists {
		return false, nil
	}
	c := *link
	r.links[link.Token] = &c
	r.linkByBooking[link.BookingID] = link.Token
	return true, nil
}

func (r *reviews) GetLink(_ context.Context, token string) (*entity.ReviewLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[token]
	if !ok {
		return nil, entity.ErrReviewLinkNotFound
	}
	c := *link
	return &c, nil
}

type discounts state

func (r *discounts) CreateIfAbsent(_ context.Context, code *entity.DiscountCode) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.discountByRev[code.ReviewID]; exists {
		return false, nil
	}
	if _, exists := r.discounts[code.Code]; exists {
		return false, entity.Validation("discount code %s already exists", code.Code)
	}
	r.discounts[code.Code] = copyDiscount(code)
	r.discountByRev[code.ReviewID] = code.Code
	return true, nil
}

func (r *discounts) GetByCode(_ context.Context, code string) (*entity.DiscountCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discounts[code]
	if !ok {
		return nil, entity.ErrDiscountNotFound
	}
	return copyDiscount(d), nil
}

func (r *discounts) Redeem(_ context.Context, code, bookingID string, at time.Time) (*entity.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discounts[code]
	if !ok {
		return nil, entity.ErrDiscountNotFound
	}
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	if err := d.CheckRedeemable(b, at); err != nil {
		return nil, err
	}
	d.Redeem(b, at)
	return &entity.Redemption{Code: copyDiscount(d), Booking: copyBooking(b)}, nil
}

type notifications state

func (r *notifications) Create(_ context.Context, n *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *n
	r.notifications = append(r.notifications, &c)
	return nil
}

func (r *notifications) ListByUser(_ context.Context, userID string, limit int) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Notification
	for i := len(r.notifications) - 1; i >= 0; i-- {
		n := r.notifications[i]
		if n.UserID != userID {
			continue
		}
		c := *n
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
