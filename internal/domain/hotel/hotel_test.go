package hotel

import (
	"testing"
	"time"
)

func stay() (time.Time, time.Time) {
	checkIn := time.Now().AddDate(0, 0, 1)
	return checkIn, checkIn.AddDate(0, 0, 2)
}

func TestSearchQueryValidate(t *testing.T) {
	checkIn, checkOut := stay()

	tests := []struct {
		name    string
		query   SearchQuery
		wantErr bool
	}{
		{"valid", SearchQuery{Location: "paris", CheckIn: checkIn, CheckOut: checkOut, Guests: 2, Rooms: 1}, false},
		{"missing location", SearchQuery{CheckIn: checkIn, CheckOut: checkOut, Guests: 2, Rooms: 1}, true},
		{"checkout before checkin", SearchQuery{Location: "paris", CheckIn: checkOut, CheckOut: checkIn, Guests: 2, Rooms: 1}, true},
		{"zero guests", SearchQuery{Location: "paris", CheckIn: checkIn, CheckOut: checkOut, Rooms: 1}, true},
		{"zero rooms", SearchQuery{Location: "paris", CheckIn: checkIn, CheckOut: checkOut, Guests: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateQueryValidate(t *testing.T) {
	checkIn, checkOut := stay()

	tests := []struct {
		name    string
		query   RateQuery
		wantErr bool
	}{
		{"valid", RateQuery{HotelID: "H001", CheckIn: checkIn, CheckOut: checkOut, Guests: 2, Rooms: 1}, false},
		{"missing hotel id", RateQuery{CheckIn: checkIn, CheckOut: checkOut, Guests: 2, Rooms: 1}, true},
		{"zero rooms", RateQuery{HotelID: "H001", CheckIn: checkIn, CheckOut: checkOut, Guests: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDoesNotMutateQuery(t *testing.T) {
	checkIn, checkOut := stay()

	query := SearchQuery{Location: "paris", CheckIn: checkIn, CheckOut: checkOut, Guests: 2}
	_ = query.Validate()
	if query.Rooms != 0 {
		t.Errorf("expected Rooms untouched, got %d", query.Rooms)
	}

	rates := RateQuery{HotelID: "H001", CheckIn: checkIn, CheckOut: checkOut, Guests: 2}
	_ = rates.Validate()
	if rates.Rooms != 0 {
		t.Errorf("expected Rooms untouched, got %d", rates.Rooms)
	}
}
