package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiscountCheckRedeemable(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	code := func() *DiscountCode {
		return &DiscountCode{Code: "SPA-ABCD1234", ProviderID: "p1", Percentage: 10, ValidUntil: now.Add(time.Hour)}
	}
	booking := func() *Booking {
		return &Booking{ID: "b2", ProviderID: "p1", Status: BookingStatusPending, Price: decimal.NewFromInt(250000)}
	}

	tests := []struct {
		name    string
		mutate  func(*DiscountCode, *Booking)
		wantErr error
	}{
		{name: "valid", mutate: func(*DiscountCode, *Booking) {}},
		{name: "used", mutate: func(d *DiscountCode, _ *Booking) { d.Used = true }, wantErr: ErrDiscountUsed},
		{name: "expired", mutate: func(d *DiscountCode, _ *Booking) { d.ValidUntil = now.Add(-time.Second) }, wantErr: ErrDiscountExpired},
		{name: "other provider", mutate: func(_ *DiscountCode, b *Booking) { b.ProviderID = "p2" }, wantErr: ErrDiscountWrongOwner},
		{name: "booking discounted", mutate: func(_ *DiscountCode, b *Booking) { b.DiscountCode = "SPA-OTHER" }, wantErr: ErrBookingDiscountUsed},
		{name: "completed booking", mutate: func(_ *DiscountCode, b *Booking) { b.Status = BookingStatusCompleted }, wantErr: ErrDiscountNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, b := code(), booking()
			tt.mutate(d, b)
			err := d.CheckRedeemable(b, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestDiscountRedeem(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &DiscountCode{Code: "SPA-ABCD1234", Percentage: 15}
	b := &Booking{ID: "b2", Price: decimal.NewFromInt(199999)}

	d.Redeem(b, at)

	assert.True(t, d.Used)
	assert.Equal(t, "b2", d.UsedBookingID)
	assert.True(t, decimal.NewFromInt(169999).Equal(b.Price), b.Price.String())
	assert.Equal(t, "SPA-ABCD1234", b.DiscountCode)
	assert.Equal(t, 15, b.DiscountPercentage)
}
