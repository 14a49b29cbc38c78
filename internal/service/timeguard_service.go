package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/repository"
)

// ErrTimeIntegrity marks a detected device-clock manipulation. Callers must
// refuse the time-dependent operation and surface the condition rather than
// silently trusting the clock.
var ErrTimeIntegrity = errors.New("time manipulation detected")

// IntegrityResult is the guard's verdict for one check.
type IntegrityResult struct {
	Valid  bool   `json:"is_valid"`
	Reason string `json:"reason,omitempty"`
}

// TimeTrustStore is the slice of the Local Store the guard needs.
type TimeTrustStore interface {
	Save(ctx context.Context, rec model.TimeTrustRecord) error
	Get(ctx context.Context, userEmail string) (model.TimeTrustRecord, error)
}

// TimeGuardService detects coarse device-clock jumps between two checks by
// anchoring on the last trusted server time. It cannot fully prevent
// manipulation (no secure clock exists on a general client) but catches the
// common set-the-clock-back case on timed quizzes.
type TimeGuardService struct {
	store     TimeTrustStore
	tolerance time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewTimeGuardService creates a new TimeGuardService.
func NewTimeGuardService(store TimeTrustStore, tolerance time.Duration, log zerolog.Logger) *TimeGuardService {
	return &TimeGuardService{
		store:     store,
		tolerance: tolerance,
		now:       time.Now,
		log:       log.With().Str("component", "time_guard").Logger(),
	}
}

// RecordTrustedTime persists the (serverTime, deviceTimeAtCapture) pair,
// overwriting any prior anchor for the user.
func (s *TimeGuardService) RecordTrustedTime(ctx context.Context, userEmail string, serverTime time.Time) error {
	rec := model.TimeTrustRecord{
		UserEmail:  userEmail,
		ServerTime: serverTime,
		DeviceTime: s.now(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("record trusted time: %w", err)
	}
	return nil
}

// CheckIntegrity validates the device clock against the stored anchor while
// offline. A device reading earlier than the anchored device time means the
// clock was rolled back. Without a fresh server time a forward jump is
// undetectable, so forward movement passes here and is caught by
// CheckAgainstServer on the next online contact.
func (s *TimeGuardService) CheckIntegrity(ctx context.Context, userEmail string) (IntegrityResult, error) {
	rec, err := s.store.Get(ctx, userEmail)
	if errors.Is(err, repository.ErrNotFound) {
		// Nothing to compare against yet; first contact will anchor.
		return IntegrityResult{Valid: true}, nil
	}
	if err != nil {
		return IntegrityResult{}, fmt.Errorf("load time trust record: %w", err)
	}

	device := s.now()
	if device.Before(rec.DeviceTime) {
		s.log.Warn().
			Str("user_email", userEmail).
			Time("anchored_device_time", rec.DeviceTime).
			Time("device_time", device).
			Msg("Device clock rolled back")
		return IntegrityResult{Valid: false, Reason: "device clock is earlier than the last trusted reading"}, nil
	}
	return IntegrityResult{Valid: true}, nil
}

// CheckAgainstServer compares elapsed device time with elapsed server time
// since the anchor. Divergence beyond the tolerance in either direction
// fails the check.
func (s *TimeGuardService) CheckAgainstServer(ctx context.Context, userEmail string, serverNow time.Time) (IntegrityResult, error) {
	rec, err := s.store.Get(ctx, userEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return IntegrityResult{Valid: true}, nil
	}
	if err != nil {
		return IntegrityResult{}, fmt.Errorf("load time trust record: %w", err)
	}

	elapsedDevice := s.now().Sub(rec.DeviceTime)
	elapsedServer := serverNow.Sub(rec.ServerTime)

	drift := elapsedDevice - elapsedServer
	if drift < 0 {
		drift = -drift
	}
	if drift > s.tolerance {
		s.log.Warn().
			Str("user_email", userEmail).
			Dur("elapsed_device", elapsedDevice).
			Dur("elapsed_server", elapsedServer).
			Dur("tolerance", s.tolerance).
			Msg("Device clock drift exceeds tolerance")
		return IntegrityResult{Valid: false, Reason: "device clock diverges from server time beyond tolerance"}, nil
	}
	return IntegrityResult{Valid: true}, nil
}
