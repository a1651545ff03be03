package services

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"tutorlink/apperrors"
	"tutorlink/models"
	"tutorlink/payments"
	"tutorlink/ratelim"
	"tutorlink/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPlatformFeePercent = 10.0
	maxSetupRetries           = 3
	setupRetryBaseBackoff     = 500 * time.Millisecond
)

// PaymentIntentResult is what SetupPayment hands back to the caller.
// Cached is true when an earlier, still-usable intent was returned
// instead of creating a new one.
type PaymentIntentResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	IntentID      string    `json:"intent_id"`
	PaymentType   string    `json:"payment_type"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Cached        bool      `json:"cached"`
}

type BookingService struct {
	DB      *gorm.DB
	Gateway payments.Gateway
	Limiter *ratelim.PaymentLimiter

	FeePercent    float64
	BufferMinutes int

	now   func() time.Time
	sleep func(time.Duration)
}

func NewBookingService(db *gorm.DB, gateway payments.Gateway, limiter *ratelim.PaymentLimiter, feePercent float64, bufferMinutes int) *BookingService {
	if feePercent <= 0 {
		feePercent = DefaultPlatformFeePercent
	}
	if bufferMinutes <= 0 {
		bufferMinutes = DefaultBufferMinutes
	}
	return &BookingService{
		DB:            db,
		Gateway:       gateway,
		Limiter:       limiter,
		FeePercent:    feePercent,
		BufferMinutes: bufferMinutes,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// PlatformFee computes the platform's cut of an amount in minor units.
func (s *BookingService) PlatformFee(amount int64) int64 {
	return int64(math.Round(float64(amount) * s.FeePercent / 100))
}

// SelectSlot commits a student to an open slot. Slot availability shown
// to the client is only a snapshot, so the overlap check is repeated here
// inside a transaction; the partial unique index on
// (tutor_id, start_time, end_time) is the last word when two requests
// race. The loser gets a ConflictError, never a silent double-booking.
func (s *BookingService) SelectSlot(studentID, tutorID uuid.UUID, courseID *uuid.UUID, start, end time.Time) (*models.Session, error) {
	if !end.After(start) {
		return nil, apperrors.NewValidationError("end_time", "must be after start_time")
	}
	earliest := s.now().Add(time.Duration(s.BufferMinutes) * time.Minute)
	if start.Before(earliest) {
		return nil, apperrors.NewValidationError("start_time", "slot is inside the booking buffer window")
	}

	var session models.Session
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var clash int64
		err := tx.Model(&models.Session{}).
			Where("tutor_id = ? AND status <> ? AND start_time < ? AND end_time > ?",
				tutorID, models.SessionStatusCancelled, end, start).
			Count(&clash).Error
		if err != nil {
			return apperrors.NewPersistenceError("slot conflict check", err)
		}
		if clash > 0 {
			return apperrors.NewConflictError("slot is no longer available")
		}

		ref, err := utils.GenerateUniqueBookingRef(tx)
		if err != nil {
			return apperrors.NewPersistenceError("booking reference", err)
		}

		session = models.Session{
			StudentID:     studentID,
			TutorID:       tutorID,
			CourseID:      courseID,
			Reference:     ref,
			StartTime:     start,
			EndTime:       end,
			Status:        models.SessionStatusPending,
			PaymentStatus: models.PaymentStatusUnpaid,
		}
		if err := tx.Create(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.NewConflictError("slot is no longer available")
			}
			return apperrors.NewPersistenceError("session create", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SetupPayment creates (or returns) the payment intent for a session.
//
// Idempotency: an existing non-terminal PaymentTransaction for the
// session short-circuits with the cached intent before the rate limiter
// is consulted, so replays of an in-flight setup are free. Only genuinely
// new intent creation is rate limited.
//
// Path decision: tutors with a fully onboarded payout account get a
// direct intent (processor splits off the platform fee at charge time);
// everyone else, and any call with forceTwoStage, gets a deferred intent
// plus a PendingTransfer row for later settlement. An account-not-ready
// error from the direct path falls back to deferred exactly once.
func (s *BookingService) SetupPayment(sessionID uuid.UUID, amount int64, forceTwoStage bool) (*PaymentIntentResult, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("amount", "must be positive")
	}

	var session models.Session
	if err := s.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewValidationError("session_id", "session not found")
		}
		return nil, apperrors.NewPersistenceError("session lookup", err)
	}
	if session.Terminal() {
		return nil, apperrors.NewConflictError("session is already " + session.Status)
	}

	var existing models.PaymentTransaction
	err := s.DB.
		Where("session_id = ? AND status NOT IN ?", sessionID,
			[]string{models.TxnStatusSucceeded, models.TxnStatusFailed, models.TxnStatusCanceled}).
		First(&existing).Error
	if err == nil {
		intentID := ""
		if existing.ExternalIntentID != nil {
			intentID = *existing.ExternalIntentID
		}
		return &PaymentIntentResult{
			TransactionID: existing.ID,
			IntentID:      intentID,
			PaymentType:   existing.PaymentType,
			Amount:        existing.Amount,
			Status:        existing.Status,
			Cached:        true,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewPersistenceError("transaction lookup", err)
	}

	if s.Limiter != nil {
		if retryAfter, ok := s.Limiter.Allow(sessionID.String(), session.TutorID.String()); !ok {
			return nil, &apperrors.RateLimitedError{RetryAfter: retryAfter}
		}
	}

	var tutor models.Tutor
	if err := s.DB.First(&tutor, "user_id = ?", session.TutorID).Error; err != nil {
		return nil, apperrors.NewPersistenceError("tutor lookup", err)
	}

	fee := s.PlatformFee(amount)
	useDeferred := forceTwoStage || !tutor.PayoutReady()

	if !useDeferred {
		intent, err := s.callWithRetry(func() (*payments.IntentResult, error) {
			return s.Gateway.CreateDirectIntent(amount, *tutor.PayoutAccountID, fee)
		})
		if err == nil {
			return s.recordDirect(&session, intent, amount)
		}
		pe, ok := apperrors.IsPaymentSetup(err)
		if !ok || pe.Kind != apperrors.PaymentKindAccountNotReady {
			return nil, err
		}
		// Onboarding flag was stale; fall through to the deferred path.
	}

	intent, err := s.callWithRetry(func() (*payments.IntentResult, error) {
		return s.Gateway.CreateDeferredIntent(amount)
	})
	if err != nil {
		return nil, err
	}
	return s.recordDeferred(&session, intent, amount, fee)
}

func (s *BookingService) recordDirect(session *models.Session, intent *payments.IntentResult, amount int64) (*PaymentIntentResult, error) {
	txn := models.PaymentTransaction{
		SessionID:        session.ID,
		Amount:           amount,
		Status:           models.TxnStatusPending,
		PaymentType:      models.PaymentTypeDirect,
		ExternalIntentID: &intent.IntentID,
	}
	if err := s.DB.Create(&txn).Error; err != nil {
		return nil, apperrors.NewPersistenceError("transaction create", err)
	}
	return &PaymentIntentResult{
		TransactionID: txn.ID,
		IntentID:      intent.IntentID,
		PaymentType:   models.PaymentTypeDirect,
		Amount:        amount,
		Status:        txn.Status,
	}, nil
}

func (s *BookingService) recordDeferred(session *models.Session, intent *payments.IntentResult, amount, fee int64) (*PaymentIntentResult, error) {
	txn := models.PaymentTransaction{
		SessionID:        session.ID,
		Amount:           amount,
		Status:           models.TxnStatusPending,
		PaymentType:      models.PaymentTypeDeferred,
		ExternalIntentID: &intent.IntentID,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		transfer := models.PendingTransfer{
			SessionID:   session.ID,
			TutorID:     session.TutorID,
			StudentID:   session.StudentID,
			Amount:      amount - fee,
			PlatformFee: fee,
			Status:      models.TransferStatusPending,
		}
		return tx.Create(&transfer).Error
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("deferred payment create", err)
	}
	return &PaymentIntentResult{
		TransactionID: txn.ID,
		IntentID:      intent.IntentID,
		PaymentType:   models.PaymentTypeDeferred,
		Amount:        amount,
		Status:        txn.Status,
	}, nil
}

// callWithRetry retries network-class processor errors with exponential
// backoff and jitter. Declined and account-not-ready errors surface
// immediately.
func (s *BookingService) callWithRetry(fn func() (*payments.IntentResult, error)) (*payments.IntentResult, error) {
	backoff := setupRetryBaseBackoff
	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		pe, ok := apperrors.IsPaymentSetup(err)
		if !ok || pe.Kind != apperrors.PaymentKindNetwork || attempt >= maxSetupRetries-1 {
			return nil, err
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		s.sleep(backoff + jitter)
		backoff *= 2
	}
}

// ConfirmCompletion records one side's confirmation. Confirming twice
// from the same role is a no-op. The second side to confirm flips the
// session to completed and stamps the completion date, which makes any
// deferred transfer eligible for settlement.
func (s *BookingService) ConfirmCompletion(sessionID, callerID uuid.UUID, role string) (bool, error) {
	var both bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewValidationError("session_id", "session not found")
			}
			return apperrors.NewPersistenceError("session lookup", err)
		}

		switch role {
		case "student":
			if session.StudentID != callerID {
				return apperrors.NewValidationError("session_id", "not your session")
			}
		case "tutor":
			if session.TutorID != callerID {
				return apperrors.NewValidationError("session_id", "not your session")
			}
		default:
			return apperrors.NewValidationError("role", "must be student or tutor")
		}

		if session.Status == models.SessionStatusCancelled {
			return apperrors.NewConflictError("session is cancelled")
		}
		if session.Status == models.SessionStatusCompleted {
			both = true
			return nil
		}

		if role == "student" {
			session.StudentConfirmed = true
		} else {
			session.TutorConfirmed = true
		}

		if session.StudentConfirmed && session.TutorConfirmed {
			now := s.now()
			session.Status = models.SessionStatusCompleted
			session.CompletionDate = &now
			both = true
		}

		if err := tx.Save(&session).Error; err != nil {
			return apperrors.NewPersistenceError("session confirm", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return both, nil
}

// CancelSession moves a session to cancelled from any non-terminal state.
// Sessions are never deleted.
func (s *BookingService) CancelSession(sessionID, callerID uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewValidationError("session_id", "session not found")
			}
			return apperrors.NewPersistenceError("session lookup", err)
		}
		if session.StudentID != callerID && session.TutorID != callerID {
			return apperrors.NewValidationError("session_id", "not your session")
		}
		if session.Terminal() {
			return apperrors.NewConflictError("session is already " + session.Status)
		}
		session.Status = models.SessionStatusCancelled
		if err := tx.Save(&session).Error; err != nil {
			return apperrors.NewPersistenceError("session cancel", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}
