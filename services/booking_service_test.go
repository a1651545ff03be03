package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tutorlink/apperrors"
	"tutorlink/models"
	"tutorlink/payments"
	"tutorlink/ratelim"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", filepath.Join(t.TempDir(), "bookings.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Tutor{},
		&models.Course{},
		&models.AvailabilityWindow{},
		&models.Session{},
		&models.PaymentTransaction{},
		&models.PendingTransfer{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	err = db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_tutor_slot
		 ON sessions (tutor_id, start_time, end_time)
		 WHERE status <> 'cancelled'`,
	).Error
	if err != nil {
		t.Fatalf("failed to create slot conflict index: %v", err)
	}

	return db
}

type fakeGateway struct {
	directErr   error
	deferredErr error

	directCalls   int
	deferredCalls int
}

func (g *fakeGateway) CreateDirectIntent(amount int64, payeeAccount string, platformFee int64) (*payments.IntentResult, error) {
	g.directCalls++
	if g.directErr != nil {
		return nil, g.directErr
	}
	return &payments.IntentResult{IntentID: fmt.Sprintf("pi_direct_%d", g.directCalls), Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) CreateDeferredIntent(amount int64) (*payments.IntentResult, error) {
	g.deferredCalls++
	if g.deferredErr != nil {
		return nil, g.deferredErr
	}
	return &payments.IntentResult{IntentID: fmt.Sprintf("pi_deferred_%d", g.deferredCalls), Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) CreateTransfer(amount int64, destination, transferGroup string, metadata map[string]string) (string, error) {
	return "tr_test", nil
}

func (g *fakeGateway) RetrieveBalance() (int64, error) {
	return 1 << 40, nil
}

func seedParties(t *testing.T, db *gorm.DB, payoutReady bool) (student models.User, tutor models.Tutor) {
	t.Helper()

	student = models.User{FullName: "Student One", Email: uuid.NewString() + "@example.com", Password: "x", Role: "student"}
	if err := db.Create(&student).Error; err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}

	tutorUser := models.User{FullName: "Tutor One", Email: uuid.NewString() + "@example.com", Password: "x", Role: "tutor"}
	if err := db.Create(&tutorUser).Error; err != nil {
		t.Fatalf("failed to seed tutor user: %v", err)
	}

	tutor = models.Tutor{UserID: tutorUser.ID, Status: "active", PayoutsEnabled: payoutReady}
	if payoutReady {
		acct := "acct_ready"
		tutor.PayoutAccountID = &acct
	}
	if err := db.Create(&tutor).Error; err != nil {
		t.Fatalf("failed to seed tutor: %v", err)
	}
	return student, tutor
}

func newTestService(db *gorm.DB, gw payments.Gateway) *BookingService {
	svc := NewBookingService(db, gw, nil, 10, 180)
	svc.sleep = func(time.Duration) {}
	return svc
}

func futureSlot() (time.Time, time.Time) {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	return start, start.Add(30 * time.Minute)
}

func TestSelectSlotCreatesPendingSession(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}
	if session.Status != models.SessionStatusPending {
		t.Errorf("expected status pending, got %s", session.Status)
	}
	if session.PaymentStatus != models.PaymentStatusUnpaid {
		t.Errorf("expected payment status unpaid, got %s", session.PaymentStatus)
	}
	if session.Reference == "" {
		t.Error("expected a booking reference")
	}
}

func TestSelectSlotInsideBufferRejected(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})

	start := time.Now().Add(time.Hour)
	_, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, start.Add(30*time.Minute))
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSelectSlotConflict(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	other := models.User{FullName: "Student Two", Email: uuid.NewString() + "@example.com", Password: "x", Role: "student"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("failed to seed second student: %v", err)
	}
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	if _, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end); err != nil {
		t.Fatalf("first SelectSlot failed: %v", err)
	}
	_, err := svc.SelectSlot(other.ID, tutor.UserID, nil, start, end)
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSelectSlotConcurrentOnlyOneWins(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	other := models.User{FullName: "Student Two", Email: uuid.NewString() + "@example.com", Password: "x", Role: "student"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("failed to seed second student: %v", err)
	}
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sid := range []uuid.UUID{student.ID, other.ID} {
		wg.Add(1)
		go func(i int, sid uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.SelectSlot(sid, tutor.UserID, nil, start, end)
		}(i, sid)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !apperrors.IsConflict(err) {
			t.Errorf("loser should get ConflictError, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}

	var count int64
	db.Model(&models.Session{}).Where("tutor_id = ? AND status <> ?", tutor.UserID, models.SessionStatusCancelled).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one session row, got %d", count)
	}
}

func TestSelectSlotCancelledSlotRebookable(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	first, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("first SelectSlot failed: %v", err)
	}
	if _, err := svc.CancelSession(first.ID, student.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end); err != nil {
		t.Fatalf("rebooking a cancelled slot should succeed, got %v", err)
	}
}

func TestSetupPaymentDirectPath(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	result, err := svc.SetupPayment(session.ID, 10000, false)
	if err != nil {
		t.Fatalf("SetupPayment failed: %v", err)
	}
	if result.PaymentType != models.PaymentTypeDirect {
		t.Errorf("expected direct payment, got %s", result.PaymentType)
	}
	if gw.directCalls != 1 || gw.deferredCalls != 0 {
		t.Errorf("expected one direct call, got direct=%d deferred=%d", gw.directCalls, gw.deferredCalls)
	}

	var transfers int64
	db.Model(&models.PendingTransfer{}).Count(&transfers)
	if transfers != 0 {
		t.Errorf("direct path must not create PendingTransfers, got %d", transfers)
	}
}

func TestSetupPaymentDeferredPath(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, false)
	gw := &fakeGateway{}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	result, err := svc.SetupPayment(session.ID, 10000, false)
	if err != nil {
		t.Fatalf("SetupPayment failed: %v", err)
	}
	if result.PaymentType != models.PaymentTypeDeferred {
		t.Errorf("expected deferred payment, got %s", result.PaymentType)
	}

	var transfers []models.PendingTransfer
	db.Find(&transfers)
	if len(transfers) != 1 {
		t.Fatalf("expected exactly one PendingTransfer, got %d", len(transfers))
	}
	if transfers[0].Amount != 9000 {
		t.Errorf("expected tutor share 9000 (charge minus 10%% fee), got %d", transfers[0].Amount)
	}
	if transfers[0].PlatformFee != 1000 {
		t.Errorf("expected platform fee 1000, got %d", transfers[0].PlatformFee)
	}
	if transfers[0].Status != models.TransferStatusPending {
		t.Errorf("expected pending transfer, got %s", transfers[0].Status)
	}
}

func TestSetupPaymentIdempotent(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{}
	svc := newTestService(db, gw)
	// Strict limiter: the replay must be served from the cached lookup,
	// never counted as a new attempt.
	svc.Limiter = ratelim.NewPaymentLimiter(1, time.Minute, 5*time.Second, 10*time.Minute)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	first, err := svc.SetupPayment(session.ID, 10000, false)
	if err != nil {
		t.Fatalf("first SetupPayment failed: %v", err)
	}
	second, err := svc.SetupPayment(session.ID, 10000, false)
	if err != nil {
		t.Fatalf("second SetupPayment failed: %v", err)
	}

	if !second.Cached {
		t.Error("second call should return the cached intent")
	}
	if first.TransactionID != second.TransactionID {
		t.Error("both calls must reference the same transaction")
	}
	if first.IntentID != second.IntentID {
		t.Error("both calls must reference the same intent")
	}

	var count int64
	db.Model(&models.PaymentTransaction{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one PaymentTransaction, got %d", count)
	}
	if gw.directCalls != 1 {
		t.Errorf("expected one processor call, got %d", gw.directCalls)
	}
}

func TestSetupPaymentAccountNotReadyFallsBackToDeferred(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{
		directErr: apperrors.NewPaymentSetupError(apperrors.PaymentKindAccountNotReady, "capabilities missing", nil),
	}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	result, err := svc.SetupPayment(session.ID, 10000, false)
	if err != nil {
		t.Fatalf("SetupPayment should fall back, got %v", err)
	}
	if result.PaymentType != models.PaymentTypeDeferred {
		t.Errorf("expected deferred fallback, got %s", result.PaymentType)
	}
	if gw.directCalls != 1 || gw.deferredCalls != 1 {
		t.Errorf("expected one direct and one deferred call, got %d/%d", gw.directCalls, gw.deferredCalls)
	}

	var transfers int64
	db.Model(&models.PendingTransfer{}).Count(&transfers)
	if transfers != 1 {
		t.Errorf("fallback must create a PendingTransfer, got %d", transfers)
	}
}

func TestSetupPaymentDeclinedSurfacesImmediately(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{
		directErr: apperrors.NewPaymentSetupError(apperrors.PaymentKindDeclined, "card declined", nil),
	}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	_, err = svc.SetupPayment(session.ID, 10000, false)
	pe, ok := apperrors.IsPaymentSetup(err)
	if !ok || pe.Kind != apperrors.PaymentKindDeclined {
		t.Fatalf("expected declined error, got %v", err)
	}
	if gw.directCalls != 1 {
		t.Errorf("declined must not be retried, got %d calls", gw.directCalls)
	}

	var count int64
	db.Model(&models.PaymentTransaction{}).Count(&count)
	if count != 0 {
		t.Errorf("no transaction should be recorded on decline, got %d", count)
	}
}

func TestSetupPaymentRetriesNetworkErrors(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{
		directErr: apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, "timeout", errors.New("timeout")),
	}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	_, err = svc.SetupPayment(session.ID, 10000, false)
	pe, ok := apperrors.IsPaymentSetup(err)
	if !ok || pe.Kind != apperrors.PaymentKindNetwork {
		t.Fatalf("expected network error after retries, got %v", err)
	}
	if gw.directCalls != maxSetupRetries {
		t.Errorf("expected %d attempts, got %d", maxSetupRetries, gw.directCalls)
	}
}

func TestSetupPaymentForceTwoStage(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	gw := &fakeGateway{}
	svc := newTestService(db, gw)
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	result, err := svc.SetupPayment(session.ID, 10000, true)
	if err != nil {
		t.Fatalf("SetupPayment failed: %v", err)
	}
	if result.PaymentType != models.PaymentTypeDeferred {
		t.Errorf("forceTwoStage must use the deferred path, got %s", result.PaymentType)
	}
	if gw.directCalls != 0 {
		t.Errorf("forceTwoStage must skip the direct path, got %d calls", gw.directCalls)
	}
}

func TestConfirmCompletionBothSides(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	both, err := svc.ConfirmCompletion(session.ID, student.ID, "student")
	if err != nil {
		t.Fatalf("student confirm failed: %v", err)
	}
	if both {
		t.Error("one confirmation must not complete the session")
	}

	// Same role confirming again is a no-op.
	both, err = svc.ConfirmCompletion(session.ID, student.ID, "student")
	if err != nil {
		t.Fatalf("repeat confirm failed: %v", err)
	}
	if both {
		t.Error("repeat confirmation must not complete the session")
	}

	both, err = svc.ConfirmCompletion(session.ID, tutor.UserID, "tutor")
	if err != nil {
		t.Fatalf("tutor confirm failed: %v", err)
	}
	if !both {
		t.Fatal("second side confirming should complete the session")
	}

	var got models.Session
	db.First(&got, "id = ?", session.ID)
	if got.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletionDate == nil {
		t.Error("expected completion date to be stamped")
	}
}

func TestConfirmCompletionWrongPartyRejected(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}

	if _, err := svc.ConfirmCompletion(session.ID, uuid.New(), "student"); !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError for a stranger, got %v", err)
	}
}

func TestCancelSessionTerminalStatesRejected(t *testing.T) {
	db := newTestDB(t)
	student, tutor := seedParties(t, db, true)
	svc := newTestService(db, &fakeGateway{})
	start, end := futureSlot()

	session, err := svc.SelectSlot(student.ID, tutor.UserID, nil, start, end)
	if err != nil {
		t.Fatalf("SelectSlot failed: %v", err)
	}
	if _, err := svc.CancelSession(session.ID, student.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := svc.CancelSession(session.ID, student.ID); !apperrors.IsConflict(err) {
		t.Fatalf("expected ConflictError cancelling twice, got %v", err)
	}
}
