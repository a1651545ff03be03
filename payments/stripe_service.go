package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "tutorlink/configs"
	"tutorlink/apperrors"

	"golang.org/x/time/rate"
)

type StripeService struct {
	APIBase   string
	SecretKey string
	Currency  string

	client *http.Client

	// Outbound limiter so bursts from our side never trip the
	// processor's own rate limits.
	limiter *rate.Limiter
}

func NewStripeService() *StripeService {
	apiBase := config.Config("STRIPE_API_BASE_URL")
	if apiBase == "" {
		apiBase = "https://api.stripe.com"
	}
	currency := config.Config("PLATFORM_CURRENCY")
	if currency == "" {
		currency = "usd"
	}

	return &StripeService{
		APIBase:   apiBase,
		SecretKey: config.Config("STRIPE_SECRET_KEY"),
		Currency:  currency,
		client:    &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(25), 25),
	}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *StripeService) postForm(path string, form url.Values) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s%s", s.APIBase, path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(s.SecretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (s *StripeService) get(path string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequest("GET", fmt.Sprintf("%s%s", s.APIBase, path), nil)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(s.SecretKey, "")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// accountNotReadyCodes are the processor error codes that mean the payout
// destination cannot receive funds yet. They trigger the deferred-path
// fallback rather than a retry.
var accountNotReadyCodes = map[string]bool{
	"account_invalid":                        true,
	"account_not_ready":                      true,
	"transfers_not_allowed":                  true,
	"insufficient_capabilities_for_transfer": true,
}

func classifySetupError(body []byte, status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, fmt.Sprintf("processor returned status %d", status), nil)
	}

	var se stripeError
	if err := json.Unmarshal(body, &se); err == nil && se.Error.Type != "" {
		if accountNotReadyCodes[se.Error.Code] {
			return apperrors.NewPaymentSetupError(apperrors.PaymentKindAccountNotReady, se.Error.Message, nil)
		}
		if se.Error.Type == "card_error" {
			return apperrors.NewPaymentSetupError(apperrors.PaymentKindDeclined, se.Error.Message, nil)
		}
		return apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, se.Error.Message, nil)
	}
	return apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, fmt.Sprintf("unexpected processor response, status %d", status), nil)
}

func (s *StripeService) CreateDirectIntent(amount int64, payeeAccount string, platformFee int64) (*IntentResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", s.Currency)
	form.Set("application_fee_amount", strconv.FormatInt(platformFee, 10))
	form.Set("transfer_data[destination]", payeeAccount)
	form.Set("automatic_payment_methods[enabled]", "true")

	body, status, err := s.postForm("/v1/payment_intents", form)
	if err != nil {
		return nil, apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, "request failed", err)
	}
	if status != http.StatusOK {
		return nil, classifySetupError(body, status)
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, "malformed processor response", err)
	}
	return &IntentResult{IntentID: intent.ID, Status: intent.Status}, nil
}

func (s *StripeService) CreateDeferredIntent(amount int64) (*IntentResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", s.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")

	body, status, err := s.postForm("/v1/payment_intents", form)
	if err != nil {
		return nil, apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, "request failed", err)
	}
	if status != http.StatusOK {
		return nil, classifySetupError(body, status)
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, apperrors.NewPaymentSetupError(apperrors.PaymentKindNetwork, "malformed processor response", err)
	}
	return &IntentResult{IntentID: intent.ID, Status: intent.Status}, nil
}

func (s *StripeService) CreateTransfer(amount int64, destination, transferGroup string, metadata map[string]string) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", s.Currency)
	form.Set("destination", destination)
	form.Set("transfer_group", transferGroup)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	body, status, err := s.postForm("/v1/transfers", form)
	if err != nil {
		return "", apperrors.NewTransferError(apperrors.TransferKindProcessorError, "request failed", err)
	}
	if status != http.StatusOK {
		var se stripeError
		if jsonErr := json.Unmarshal(body, &se); jsonErr == nil && accountNotReadyCodes[se.Error.Code] {
			return "", apperrors.NewTransferError(apperrors.TransferKindPayeeNotReady, se.Error.Message, nil)
		}
		if jsonErr := json.Unmarshal(body, &se); jsonErr == nil && se.Error.Code == "balance_insufficient" {
			return "", apperrors.NewTransferError(apperrors.TransferKindInsufficientBalance, se.Error.Message, nil)
		}
		return "", apperrors.NewTransferError(apperrors.TransferKindProcessorError, fmt.Sprintf("processor returned status %d", status), nil)
	}

	var transfer struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &transfer); err != nil {
		return "", apperrors.NewTransferError(apperrors.TransferKindProcessorError, "malformed processor response", err)
	}
	return transfer.ID, nil
}

func (s *StripeService) RetrieveBalance() (int64, error) {
	body, status, err := s.get("/v1/balance")
	if err != nil {
		return 0, apperrors.NewTransferError(apperrors.TransferKindProcessorError, "request failed", err)
	}
	if status != http.StatusOK {
		return 0, apperrors.NewTransferError(apperrors.TransferKindProcessorError, fmt.Sprintf("processor returned status %d", status), nil)
	}

	var balance struct {
		Available []struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"available"`
	}
	if err := json.Unmarshal(body, &balance); err != nil {
		return 0, apperrors.NewTransferError(apperrors.TransferKindProcessorError, "malformed processor response", err)
	}

	var total int64
	for _, a := range balance.Available {
		if strings.EqualFold(a.Currency, s.Currency) {
			total += a.Amount
		}
	}
	return total, nil
}
