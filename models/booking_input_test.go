package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateInput() CreateBookingInput {
	start := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	return CreateBookingInput{
		StartDate:     start,
		EndDate:       start.Add(48 * time.Hour),
		PaymentMethod: "VNPAY",
		Details: []BookingDetail{
			{RoomID: uuid.NewString(), Price: 120, Time: 2},
			{RoomID: uuid.NewString(), Price: 80, Time: 2, Note: "sea view"},
		},
	}
}

func TestValidateCreateBooking(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateBookingInput)
		fields []string
	}{
		{name: "valid", mutate: func(*CreateBookingInput) {}},
		{
			name:   "missing dates",
			mutate: func(in *CreateBookingInput) { in.StartDate = time.Time{}; in.EndDate = time.Time{} },
			fields: []string{"startDate", "endDate"},
		},
		{
			name:   "end before start",
			mutate: func(in *CreateBookingInput) { in.EndDate = in.StartDate.Add(-time.Hour) },
			fields: []string{"endDate"},
		},
		{
			name:   "unknown payment method",
			mutate: func(in *CreateBookingInput) { in.PaymentMethod = "CASH" },
			fields: []string{"paymentMethod"},
		},
		{
			name:   "no details",
			mutate: func(in *CreateBookingInput) { in.Details = nil },
			fields: []string{"details"},
		},
		{
			name: "bad detail",
			mutate: func(in *CreateBookingInput) {
				in.Details[1] = BookingDetail{RoomID: "room-1", Price: -1, Time: -2}
			},
			fields: []string{"details[1].roomId", "details[1].price", "details[1].time"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreateInput()
			tt.mutate(&in)

			err := ValidateCreateBooking(in)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestApplyBookingPatch(t *testing.T) {
	in := validCreateInput()
	b := Booking{
		ID:            uuid.NewString(),
		Status:        BookingPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: PaymentMethodVNPay,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Details:       in.Details,
		TotalPrice:    SumPrices(in.Details),
	}

	t.Run("replaces details wholesale", func(t *testing.T) {
		details := []BookingDetail{{RoomID: uuid.NewString(), Price: 300, Time: 1}}
		note := "late arrival"

		out, err := ApplyBookingPatch(b, BookingPatch{Details: &details, Note: &note})
		require.NoError(t, err)
		assert.Equal(t, details, out.Details)
		assert.Equal(t, 300.0, out.TotalPrice)
		assert.Equal(t, "late arrival", out.Note)
		assert.Len(t, b.Details, 2)
	})

	t.Run("end date checked against stored start", func(t *testing.T) {
		end := b.StartDate.Add(-time.Hour)
		_, err := ApplyBookingPatch(b, BookingPatch{EndDate: &end})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "endDate", verr.Fields[0].Field)
	})

	t.Run("empty details rejected", func(t *testing.T) {
		empty := []BookingDetail{}
		_, err := ApplyBookingPatch(b, BookingPatch{Details: &empty})
		assert.Error(t, err)
	})

	t.Run("payment method validated", func(t *testing.T) {
		m := "PAYPAL"
		_, err := ApplyBookingPatch(b, BookingPatch{PaymentMethod: &m})
		assert.Error(t, err)
	})
}

func TestBookingPatch_IsEmpty(t *testing.T) {
	assert.True(t, BookingPatch{}.IsEmpty())
	note := ""
	assert.False(t, BookingPatch{Note: &note}.IsEmpty())
}

func TestParseEnums(t *testing.T) {
	s, err := ParseBookingStatus("CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmed, s)
	_, err = ParseBookingStatus("confirmed")
	assert.Error(t, err)

	p, err := ParsePaymentStatus("FAILED")
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, p)
	_, err = ParsePaymentStatus("REFUNDED")
	assert.Error(t, err)

	m, err := ParsePaymentMethod("VIETQR")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodVietQR, m)
}
