package model

// ConcertDate is the catalog row listing a date and how many of its seats
// can still be held.
type ConcertDate struct {
    Date           string `json:"date"`
    TotalSeats     int    `json:"total_seats"`
    AvailableSeats int    `json:"available_seats"`
}
