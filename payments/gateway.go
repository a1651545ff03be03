package payments

// IntentResult is the processor's answer to an intent creation call.
type IntentResult struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

// Gateway is the contract this subsystem needs from the payment
// processor. All amounts are in minor currency units.
//
// CreateDirectIntent charges the student and routes amount minus
// platformFee to the tutor's payout account atomically. The deferred
// variant charges the full amount to the platform's own account; the
// tutor share is settled later with CreateTransfer.
type Gateway interface {
	CreateDirectIntent(amount int64, payeeAccount string, platformFee int64) (*IntentResult, error)
	CreateDeferredIntent(amount int64) (*IntentResult, error)
	CreateTransfer(amount int64, destination, transferGroup string, metadata map[string]string) (string, error)
	RetrieveBalance() (int64, error)
}
