package jobs

import (
	"fmt"
	"log"
	"time"

	config "tutorlink/configs"
	"tutorlink/models"
	"tutorlink/payments"

	"gorm.io/gorm"
)

const (
	DefaultMaxRetries         = 5
	DefaultSettlementDelayHrs = 24
	DefaultRetryCooldownHrs   = 24
	DefaultTransferBatchSize  = 20
)

// Summary is what one reconciler run reports back to the scheduler.
type Summary struct {
	NewTransfersProcessed  int      `json:"new_transfers_processed"`
	RetriesProcessed       int      `json:"retries_processed"`
	AdminNotificationsSent int      `json:"admin_notifications_sent"`
	Errors                 []string `json:"errors"`
}

// TransferReconciler settles deferred payments in three fault-isolated
// phases: fresh transfers, retries, then escalation of transfers that
// exhausted their retries. It is stateless and re-entrant; the
// `processing` status is the in-flight exclusion marker and every
// mutation is an idempotent update, so a crash mid-run leaves rows in a
// state the next run handles.
type TransferReconciler struct {
	DB          *gorm.DB
	Gateway     payments.Gateway
	NotifyAdmin func(transfers []models.PendingTransfer)

	MaxRetries      int
	SettlementDelay time.Duration
	RetryCooldown   time.Duration
	BatchSize       int

	now func() time.Time
}

func NewTransferReconciler(db *gorm.DB, gateway payments.Gateway, notifyAdmin func([]models.PendingTransfer)) *TransferReconciler {
	return &TransferReconciler{
		DB:              db,
		Gateway:         gateway,
		NotifyAdmin:     notifyAdmin,
		MaxRetries:      config.ConfigInt("TRANSFER_MAX_RETRIES", DefaultMaxRetries),
		SettlementDelay: time.Duration(config.ConfigInt("TRANSFER_SETTLEMENT_DELAY_HOURS", DefaultSettlementDelayHrs)) * time.Hour,
		RetryCooldown:   time.Duration(config.ConfigInt("TRANSFER_RETRY_COOLDOWN_HOURS", DefaultRetryCooldownHrs)) * time.Hour,
		BatchSize:       config.ConfigInt("TRANSFER_BATCH_SIZE", DefaultTransferBatchSize),
		now:             time.Now,
	}
}

// Run executes one reconciliation pass. A failure in one phase never
// aborts the others.
func (r *TransferReconciler) Run() Summary {
	summary := Summary{Errors: []string{}}

	newTransfers, err := r.selectNewTransfers()
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("select new transfers: %v", err))
	} else {
		processed, errs := r.processBatch(newTransfers)
		summary.NewTransfersProcessed = processed
		summary.Errors = append(summary.Errors, errs...)
	}

	retries, err := r.selectRetries()
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("select retries: %v", err))
	} else {
		processed, errs := r.processBatch(retries)
		summary.RetriesProcessed = processed
		summary.Errors = append(summary.Errors, errs...)
	}

	notified, errs := r.escalateExhausted()
	summary.AdminNotificationsSent = notified
	summary.Errors = append(summary.Errors, errs...)

	return summary
}

// selectNewTransfers picks never-attempted transfers whose session
// completed at least the settlement delay ago, oldest first.
func (r *TransferReconciler) selectNewTransfers() ([]models.PendingTransfer, error) {
	cutoff := r.now().Add(-r.SettlementDelay)

	var transfers []models.PendingTransfer
	err := r.DB.
		Joins("JOIN sessions ON sessions.id = pending_transfers.session_id").
		Where("pending_transfers.status = ? AND pending_transfers.retry_count = 0", models.TransferStatusPending).
		Where("sessions.completion_date IS NOT NULL AND sessions.completion_date <= ?", cutoff).
		Order("pending_transfers.created_at asc").
		Limit(r.BatchSize).
		Find(&transfers).Error
	return transfers, err
}

func (r *TransferReconciler) selectRetries() ([]models.PendingTransfer, error) {
	cutoff := r.now().Add(-r.RetryCooldown)

	var transfers []models.PendingTransfer
	err := r.DB.
		Where("status = ? AND retry_count > 0 AND retry_count < ?", models.TransferStatusPending, r.MaxRetries).
		Where("last_retry_at IS NOT NULL AND last_retry_at <= ?", cutoff).
		Order("created_at asc").
		Limit(r.BatchSize).
		Find(&transfers).Error
	return transfers, err
}

// processBatch settles transfers sequentially, re-checking the shared
// platform balance before each one. When the balance cannot cover the
// next transfer the rest of the batch is skipped with retry bookkeeping
// bumped, preserving creation order fairness across runs.
func (r *TransferReconciler) processBatch(transfers []models.PendingTransfer) (int, []string) {
	completed := 0
	var errs []string

	for i := range transfers {
		t := &transfers[i]

		balance, err := r.Gateway.RetrieveBalance()
		if err != nil {
			errs = append(errs, fmt.Sprintf("transfer %s: balance check failed: %v", t.ID, err))
			r.bumpRemaining(transfers[i:])
			break
		}
		if balance < t.Amount {
			errs = append(errs, fmt.Sprintf("transfer %s: insufficient platform balance (%d < %d)", t.ID, balance, t.Amount))
			r.bumpRemaining(transfers[i:])
			break
		}

		if err := r.settleOne(t); err != nil {
			errs = append(errs, fmt.Sprintf("transfer %s: %v", t.ID, err))
			continue
		}
		completed++
	}

	return completed, errs
}

// settleOne drives a single transfer through processing. The row is only
// ever marked completed when the processor returned a non-empty transfer
// id; every other outcome puts it back to pending with the retry counter
// bumped.
func (r *TransferReconciler) settleOne(t *models.PendingTransfer) error {
	// Conditional claim: losing this update means another run owns the row.
	claim := r.DB.Model(&models.PendingTransfer{}).
		Where("id = ? AND status = ?", t.ID, models.TransferStatusPending).
		Update("status", models.TransferStatusProcessing)
	if claim.Error != nil {
		return fmt.Errorf("claim failed: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return fmt.Errorf("already in flight")
	}

	var tutor models.Tutor
	if err := r.DB.First(&tutor, "user_id = ?", t.TutorID).Error; err != nil {
		r.returnToPending(t)
		return fmt.Errorf("tutor lookup failed: %w", err)
	}
	if !tutor.PayoutReady() {
		r.returnToPending(t)
		return fmt.Errorf("payout destination not ready")
	}

	transferID, err := r.Gateway.CreateTransfer(
		t.Amount,
		*tutor.PayoutAccountID,
		"session_"+t.SessionID.String(),
		map[string]string{
			"pending_transfer_id": t.ID.String(),
			"session_id":          t.SessionID.String(),
		},
	)
	if err != nil || transferID == "" {
		r.returnToPending(t)
		if err == nil {
			err = fmt.Errorf("processor returned empty transfer id")
		}
		return err
	}

	updates := map[string]interface{}{
		"status":               models.TransferStatusCompleted,
		"external_transfer_id": transferID,
	}
	if err := r.DB.Model(&models.PendingTransfer{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("completion update failed: %w", err)
	}
	return nil
}

func (r *TransferReconciler) returnToPending(t *models.PendingTransfer) {
	now := r.now()
	err := r.DB.Model(&models.PendingTransfer{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":        models.TransferStatusPending,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": now,
		}).Error
	if err != nil {
		log.Printf("🔥 Failed to return transfer %s to pending: %v", t.ID, err)
	}
}

// bumpRemaining records a retry attempt for transfers skipped by the
// balance check without ever moving them out of pending.
func (r *TransferReconciler) bumpRemaining(transfers []models.PendingTransfer) {
	now := r.now()
	for i := range transfers {
		err := r.DB.Model(&models.PendingTransfer{}).
			Where("id = ? AND status = ?", transfers[i].ID, models.TransferStatusPending).
			Updates(map[string]interface{}{
				"retry_count":   gorm.Expr("retry_count + 1"),
				"last_retry_at": now,
			}).Error
		if err != nil {
			log.Printf("🔥 Failed to bump retry for transfer %s: %v", transfers[i].ID, err)
		}
	}
}

// escalateExhausted sends exactly one admin notification covering every
// transfer that used up its retries, then marks them failed_permanent so
// they are never renotified.
func (r *TransferReconciler) escalateExhausted() (int, []string) {
	var errs []string

	var exhausted []models.PendingTransfer
	err := r.DB.
		Where("status = ? AND retry_count >= ?", models.TransferStatusPending, r.MaxRetries).
		Order("created_at asc").
		Find(&exhausted).Error
	if err != nil {
		return 0, []string{fmt.Sprintf("select exhausted transfers: %v", err)}
	}
	if len(exhausted) == 0 {
		return 0, nil
	}

	// Notification failure never blocks the status change; operators can
	// still find these rows by status.
	notified := 0
	if r.NotifyAdmin != nil {
		r.NotifyAdmin(exhausted)
		notified = 1
	}

	ids := make([]interface{}, 0, len(exhausted))
	for _, t := range exhausted {
		ids = append(ids, t.ID)
	}
	err = r.DB.Model(&models.PendingTransfer{}).
		Where("id IN ?", ids).
		Update("status", models.TransferStatusFailedPermanent).Error
	if err != nil {
		errs = append(errs, fmt.Sprintf("mark failed_permanent: %v", err))
	}

	return notified, errs
}
