package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is the catalog entry a user pays for. Only EnrollmentCount is ever
// written by this service.
type Course struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Slug            string    `db:"slug" json:"slug"`
	PriceRegular    float64   `db:"price_regular" json:"priceRegular"`
	PriceDiscounted *float64  `db:"price_discounted" json:"priceDiscounted,omitempty"`
	Currency        string    `db:"currency" json:"currency"`
	DurationDisplay string    `db:"duration_display" json:"duration"`
	IsActive        bool      `db:"is_active" json:"isActive"`
	EnrollmentCount int       `db:"enrollment_count" json:"enrollmentCount"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// EffectivePrice is the discounted price when it is set, positive and below
// the regular price; otherwise the regular price.
func (c *Course) EffectivePrice() decimal.Decimal {
	regular := decimal.NewFromFloat(c.PriceRegular)
	if c.PriceDiscounted == nil {
		return regular
	}
	discounted := decimal.NewFromFloat(*c.PriceDiscounted)
	if discounted.IsPositive() && discounted.LessThan(regular) {
		return discounted
	}
	return regular
}

// User is an account in the identity store.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Enrollment records paid access of one user to one course.
type Enrollment struct {
	ID             string    `db:"id" json:"id"`
	EnrollmentCode string    `db:"enrollment_code" json:"enrollmentCode"`
	UserID         string    `db:"user_id" json:"userId"`
	CourseID       string    `db:"course_id" json:"courseId"`
	PaymentStatus  string    `db:"payment_status" json:"paymentStatus"`
	PaymentMethod  string    `db:"payment_method" json:"paymentMethod"`
	TransactionID  string    `db:"transaction_id" json:"transactionId"`
	OrderID        string    `db:"order_id" json:"orderId"`
	Amount         float64   `db:"amount" json:"amount"`
	Currency       string    `db:"currency" json:"currency"`
	EnrolledAt     time.Time `db:"enrolled_at" json:"enrolledAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// EnrollmentWithCourse is an enrollment joined with the course summary shown
// on the learner dashboard.
type EnrollmentWithCourse struct {
	Enrollment
	CourseTitle    string `db:"course_title" json:"courseTitle"`
	CourseSlug     string `db:"course_slug" json:"courseSlug"`
	CourseDuration string `db:"course_duration" json:"courseDuration"`
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// PaymentMethodRazorpay tags enrollments paid through Razorpay checkout.
const PaymentMethodRazorpay = "razorpay"

// PendingOrder is the locally cached view of a gateway order between
// checkout and verification.
type PendingOrder struct {
	OrderID  string `json:"orderId"`
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
