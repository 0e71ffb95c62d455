package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notes is the free-form key/value map Razorpay attaches to entities. The API
// returns an empty JSON array instead of an object when there are none.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*n = Notes{}
		return nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	out := make(Notes, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	*n = out
	return nil
}

// OrderRequest creates a remote order. Amount is in the smallest currency
// unit (paise for INR).
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes,omitempty"`
}

// Order is a remote order as returned by the gateway
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Notes      Notes  `json:"notes"`
	CreatedAt  int64  `json:"created_at"`
}

// Payment is a payment entity as returned by the gateway
type Payment struct {
	ID               string  `json:"id"`
	Entity           string  `json:"entity"`
	Amount           int64   `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	OrderID          string  `json:"order_id"`
	InvoiceID        *string `json:"invoice_id"`
	International    bool    `json:"international"`
	Method           string  `json:"method"`
	AmountRefunded   int64   `json:"amount_refunded"`
	RefundStatus     *string `json:"refund_status"`
	Captured         bool    `json:"captured"`
	Description      *string `json:"description"`
	Email            string  `json:"email"`
	Contact          string  `json:"contact"`
	Fee              int64   `json:"fee"`
	Tax              int64   `json:"tax"`
	ErrorCode        *string `json:"error_code"`
	ErrorDescription *string `json:"error_description"`
	Notes            Notes   `json:"notes"`
	CreatedAt        int64   `json:"created_at"`
}

// RefundRequest refunds a payment. A zero Amount refunds the full payment.
type RefundRequest struct {
	Amount int64 `json:"amount,omitempty"`
	Notes  Notes `json:"notes,omitempty"`
}

// Refund is a refund entity as returned by the gateway
type Refund struct {
	ID             string  `json:"id"`
	Entity         string  `json:"entity"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentID      string  `json:"payment_id"`
	Receipt        *string `json:"receipt"`
	Status         string  `json:"status"`
	SpeedProcessed string  `json:"speed_processed"`
	SpeedRequested string  `json:"speed_requested"`
	Notes          Notes   `json:"notes"`
	CreatedAt      int64   `json:"created_at"`
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Field       string `json:"field"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// Error is a non-2xx response from the gateway
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("razorpay: status %d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay: %s (%s)", e.Description, e.Code)
}
