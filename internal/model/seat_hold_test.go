package model

import (
	"errors"
	"testing"
	"time"
)

func TestSeatLifecycle(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := &Seat{Status: SeatAvailable}

	if err := s.Hold("u1", now.Add(5*time.Minute)); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if s.Status != SeatTempHeld || s.HolderUserID != "u1" || s.HoldExpiresAt == nil {
		t.Fatalf("unexpected seat after hold: %+v", s)
	}
	if err := s.Hold("u2", now.Add(5*time.Minute)); !errors.Is(err, ErrSeatNotAvailable) {
		t.Fatalf("second hold: got %v", err)
	}
	if err := s.Confirm(now.Add(time.Minute)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.Status != SeatReserved {
		t.Fatalf("status = %s, want RESERVED", s.Status)
	}
	if err := s.Release(); !errors.Is(err, ErrSeatNotHeld) {
		t.Fatalf("release of reserved seat: got %v", err)
	}
}

func TestSeatConfirmAfterLapse(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := &Seat{Status: SeatAvailable}
	_ = s.Hold("u1", now)

	if s.HoldLapsed(now) {
		t.Fatal("hold ending exactly now is not lapsed")
	}
	later := now.Add(time.Second)
	if !s.HoldLapsed(later) {
		t.Fatal("hold should be lapsed")
	}
	if err := s.Confirm(later); !errors.Is(err, ErrHoldLapsed) {
		t.Fatalf("confirm after lapse: got %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if s.Status != SeatAvailable || s.HolderUserID != "" || s.HoldExpiresAt != nil {
		t.Fatalf("release did not clear hold: %+v", s)
	}
}
