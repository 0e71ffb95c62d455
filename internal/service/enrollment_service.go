package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"enrollment-service/internal/gateway"
	"enrollment-service/internal/models"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCurrency = "INR"

var hundred = decimal.NewFromInt(100)

// EnrollmentStore is the persistence the enrollment workflow needs
type EnrollmentStore interface {
	GetCourseByID(ctx context.Context, id string) (*models.Course, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	HasCompletedEnrollment(ctx context.Context, userID, courseID string) (bool, error)
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollmentByID(ctx context.Context, id string) (*models.EnrollmentWithCourse, error)
	ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error)
}

// PaymentGateway is the remote payment provider
type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	RefundPayment(ctx context.Context, paymentID string, req *gateway.RefundRequest) (*gateway.Refund, error)
}

// CheckoutCache holds short-lived checkout state: pending orders, the
// per-enrollment verification lock and verified-order markers.
type CheckoutCache interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	SavePendingOrder(ctx context.Context, order *models.PendingOrder, ttl time.Duration) error
	GetPendingOrder(ctx context.Context, orderID string) (*models.PendingOrder, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// Notifier hands enrollment events to the notification pipeline. It must not
// block.
type Notifier interface {
	DispatchEnrollmentCompleted(event *models.EnrollmentCompletedEvent) error
}

// EnrollmentOptions configures the enrollment workflow
type EnrollmentOptions struct {
	KeySecret       string
	DefaultCurrency string
	OrderTTL        time.Duration
	LockTTL         time.Duration
}

// EnrollmentService handles checkout and enrollment business logic
type EnrollmentService struct {
	store    EnrollmentStore
	gateway  PaymentGateway
	cache    CheckoutCache
	notifier Notifier
	opts     EnrollmentOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(
	store EnrollmentStore,
	gateway PaymentGateway,
	cache CheckoutCache,
	notifier Notifier,
	opts EnrollmentOptions,
) *EnrollmentService {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = defaultCurrency
	}
	if opts.OrderTTL <= 0 {
		opts.OrderTTL = 30 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}

	return &EnrollmentService{
		store:    store,
		gateway:  gateway,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CreateOrderRequest starts a checkout for one course
type CreateOrderRequest struct {
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
}

// CourseSummary is the course as shown on the checkout widget
type CourseSummary struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// UserSummary is the payer as prefilled on the checkout widget
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateOrderResponse is everything the client needs to open checkout
type CreateOrderResponse struct {
	OrderID  string        `json:"orderId"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	KeyID    string        `json:"keyId"`
	Course   CourseSummary `json:"course"`
	User     UserSummary   `json:"user"`
}

// CreateOrder validates the purchase and opens a remote order for the
// course's effective price. Nothing is written locally.
func (s *EnrollmentService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.CreateOrder")
	defer span.End()

	if req.CourseID == "" || req.UserID == "" {
		util.PaymentOrdersRejectedTotal.WithLabelValues("invalid_request").Inc()
		return nil, newError(KindValidation, "Course ID and User ID are required", nil)
	}

	course, err := s.store.GetCourseByID(ctx, req.CourseID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindInternal, "Failed to load course", err)
	}
	if course == nil || !course.IsActive {
		util.PaymentOrdersRejectedTotal.WithLabelValues("course_not_found").Inc()
		return nil, newError(KindNotFound, "Course not found", err)
	}

	user, err := s.store.GetUserByID(ctx, req.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindInternal, "Failed to load user", err)
	}
	if user == nil || !user.IsActive {
		util.PaymentOrdersRejectedTotal.WithLabelValues("user_not_found").Inc()
		return nil, newError(KindNotFound, "User not found", err)
	}

	enrolled, err := s.store.HasCompletedEnrollment(ctx, user.ID, course.ID)
	if err != nil {
		return nil, newError(KindInternal, "Failed to check enrollment", err)
	}
	if enrolled {
		util.PaymentOrdersRejectedTotal.WithLabelValues("already_enrolled").Inc()
		return nil, alreadyEnrolled(nil)
	}

	price := course.EffectivePrice()
	amount := toMinorUnits(price)
	currency := s.currencyFor(course)

	order, err := s.gateway.CreateOrder(ctx, &gateway.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  fmt.Sprintf("receipt_%s", uuid.New().String()),
		Notes: gateway.Notes{
			"courseId":   course.ID,
			"courseName": course.Title,
			"userId":     user.ID,
			"userEmail":  user.Email,
			"userName":   user.Name,
		},
	})
	if err != nil {
		util.FailSpan(span, err)
		util.PaymentOrdersRejectedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Error("Failed to create gateway order",
			zap.String("course_id", course.ID),
			zap.String("user_id", user.ID),
			zap.Error(err))
		return nil, upstreamError("Failed to create payment order", err)
	}

	pending := &models.PendingOrder{
		OrderID:  order.ID,
		CourseID: course.ID,
		UserID:   user.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	if err := s.cache.SavePendingOrder(ctx, pending, s.opts.OrderTTL); err != nil {
		s.logger.Warn("Failed to cache pending order", zap.String("order_id", order.ID), zap.Error(err))
	}

	util.PaymentOrdersCreatedTotal.Inc()
	s.logger.Info("Payment order created",
		zap.String("order_id", order.ID),
		zap.String("course_id", course.ID),
		zap.String("user_id", user.ID),
		zap.Int64("amount", order.Amount))

	return &CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
		Course: CourseSummary{
			ID:    course.ID,
			Title: course.Title,
			Price: price.InexactFloat64(),
		},
		User: UserSummary{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
	}, nil
}

// VerifyPaymentRequest is the checkout callback payload
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	CourseID  string `json:"courseId"`
	UserID    string `json:"userId"`
}

// VerifyPaymentResponse describes the enrollment a verified payment created
type VerifyPaymentResponse struct {
	ID             string    `json:"id"`
	EnrollmentCode string    `json:"enrollmentCode"`
	OrderID        string    `json:"orderId"`
	PaymentID      string    `json:"paymentId"`
	Course         string    `json:"course"`
	EnrolledAt     time.Time `json:"enrolledAt"`
}

// VerifyPayment authenticates the checkout callback and records exactly one
// completed enrollment for it.
func (s *EnrollmentService) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.VerifyPayment")
	defer span.End()

	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" || req.CourseID == "" || req.UserID == "" {
		util.PaymentVerificationsTotal.WithLabelValues("invalid_request").Inc()
		return nil, newError(KindValidation, msgIncompleteVerify, nil)
	}

	if !validPaymentSignature(s.opts.KeySecret, req.OrderID, req.PaymentID, req.Signature) {
		util.PaymentSignatureFailuresTotal.Inc()
		util.PaymentVerificationsTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.PaymentID))
		return nil, newError(KindVerification, msgInvalidSignature, nil)
	}

	pending, err := s.cache.GetPendingOrder(ctx, req.OrderID)
	if err != nil {
		s.logger.Warn("Failed to read pending order", zap.String("order_id", req.OrderID), zap.Error(err))
	}

	// Without the cached order the gateway's copy is authoritative.
	var remote *gateway.Order
	if pending == nil {
		remote, err = s.gateway.FetchOrder(ctx, req.OrderID)
		if err != nil {
			util.FailSpan(span, err)
			util.PaymentVerificationsTotal.WithLabelValues("gateway_error").Inc()
			s.logger.Error("Failed to fetch gateway order",
				zap.String("order_id", req.OrderID),
				zap.Error(err))
			return nil, upstreamError("Failed to confirm payment order", err)
		}
		pending = pendingFromOrder(remote)
	}
	if pending.CourseID != req.CourseID || pending.UserID != req.UserID {
		util.PaymentVerificationsTotal.WithLabelValues("order_mismatch").Inc()
		s.logger.Warn("Payment callback does not match order",
			zap.String("order_id", req.OrderID),
			zap.String("course_id", req.CourseID),
			zap.String("user_id", req.UserID))
		return nil, newError(KindVerification, msgOrderMismatch, nil)
	}

	verified, err := s.cache.CheckIdempotencyKey(ctx, verifiedOrderKey(req.OrderID))
	if err != nil {
		s.logger.Warn("Failed to check verified order", zap.String("order_id", req.OrderID), zap.Error(err))
	}
	if verified {
		util.DuplicateEnrollmentsTotal.Inc()
		util.PaymentVerificationsTotal.WithLabelValues("duplicate").Inc()
		return nil, alreadyEnrolled(nil)
	}

	lockKey := enrollmentLockKey(req.UserID, req.CourseID)
	token, acquired, err := s.cache.AcquireLock(ctx, lockKey, s.opts.LockTTL)
	switch {
	case err != nil:
		// The unique index still rejects a concurrent duplicate.
		s.logger.Warn("Failed to acquire enrollment lock", zap.String("lock", lockKey), zap.Error(err))
	case !acquired:
		util.PaymentVerificationsTotal.WithLabelValues("in_progress").Inc()
		return nil, newError(KindConflict, msgVerificationRunning, nil)
	default:
		defer func() {
			if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.logger.Warn("Failed to release enrollment lock", zap.String("lock", lockKey), zap.Error(err))
			}
		}()
	}

	course, user, err := s.loadCourseAndUser(ctx, req.CourseID, req.UserID)
	if err != nil {
		return nil, err
	}

	if remote != nil && remote.AmountPaid < toMinorUnits(course.EffectivePrice()) {
		util.PaymentVerificationsTotal.WithLabelValues("amount_mismatch").Inc()
		s.logger.Warn("Gateway order paid less than the course price",
			zap.String("order_id", req.OrderID),
			zap.String("course_id", course.ID),
			zap.Int64("amount_paid", remote.AmountPaid))
		return nil, newError(KindVerification, msgOrderMismatch, nil)
	}

	now := s.now().UTC()
	enrollment := &models.Enrollment{
		ID:             uuid.New().String(),
		EnrollmentCode: newEnrollmentCode(now),
		UserID:         user.ID,
		CourseID:       course.ID,
		PaymentStatus:  models.PaymentStatusCompleted,
		PaymentMethod:  models.PaymentMethodRazorpay,
		TransactionID:  req.PaymentID,
		OrderID:        req.OrderID,
		Amount:         course.EffectivePrice().InexactFloat64(),
		Currency:       s.currencyFor(course),
		EnrolledAt:     now,
	}

	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, store.ErrDuplicateEnrollment) {
			util.DuplicateEnrollmentsTotal.Inc()
			util.PaymentVerificationsTotal.WithLabelValues("duplicate").Inc()
			s.logger.Info("Duplicate enrollment rejected",
				zap.String("order_id", req.OrderID),
				zap.String("user_id", user.ID),
				zap.String("course_id", course.ID))
			return nil, alreadyEnrolled(err)
		}
		util.FailSpan(span, err)
		util.PaymentVerificationsTotal.WithLabelValues("error").Inc()
		return nil, newError(KindInternal, "Failed to create enrollment", err)
	}

	util.EnrollmentsCreatedTotal.Inc()
	util.PaymentVerificationsTotal.WithLabelValues("verified").Inc()
	s.logger.Info("Enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", req.PaymentID))

	if err := s.cache.SetIdempotencyKey(ctx, verifiedOrderKey(req.OrderID), enrollment.ID, s.opts.OrderTTL); err != nil {
		s.logger.Warn("Failed to mark order verified", zap.String("order_id", req.OrderID), zap.Error(err))
	}

	s.notifyEnrollment(enrollment, course, user)

	return &VerifyPaymentResponse{
		ID:             enrollment.ID,
		EnrollmentCode: enrollment.EnrollmentCode,
		OrderID:        enrollment.OrderID,
		PaymentID:      enrollment.TransactionID,
		Course:         course.Title,
		EnrolledAt:     enrollment.EnrolledAt,
	}, nil
}

// GetEnrollment returns one enrollment if the caller owns it or is an admin
func (s *EnrollmentService) GetEnrollment(ctx context.Context, caller Caller, id string) (*models.EnrollmentWithCourse, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.GetEnrollment")
	defer span.End()

	enrollment, err := s.store.GetEnrollmentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Enrollment not found", err)
	}
	if err != nil {
		return nil, newError(KindInternal, "Failed to load enrollment", err)
	}

	if !caller.CanActFor(enrollment.UserID) {
		return nil, newError(KindForbidden, "Not authorized to view this enrollment", nil)
	}
	return enrollment, nil
}

// ListEnrollments returns the user's enrollments, newest first
func (s *EnrollmentService) ListEnrollments(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.ListEnrollments")
	defer span.End()

	enrollments, err := s.store.ListEnrollmentsByUser(ctx, userID)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load enrollments", err)
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentWithCourse{}
	}
	return enrollments, nil
}

func (s *EnrollmentService) loadCourseAndUser(ctx context.Context, courseID, userID string) (*models.Course, *models.User, error) {
	course, err := s.store.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, newError(KindNotFound, msgCourseOrUserNotFound, err)
		}
		return nil, nil, newError(KindInternal, "Failed to load course", err)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, newError(KindNotFound, msgCourseOrUserNotFound, err)
		}
		return nil, nil, newError(KindInternal, "Failed to load user", err)
	}
	return course, user, nil
}

// notifyEnrollment never fails the request: the enrollment is already
// committed.
func (s *EnrollmentService) notifyEnrollment(e *models.Enrollment, course *models.Course, user *models.User) {
	if s.notifier == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Notification dispatch panicked",
				zap.String("enrollment_id", e.ID),
				zap.Any("panic", r))
		}
	}()

	event := &models.EnrollmentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEnrollmentCompleted,
			Timestamp: s.now().UTC(),
		},
		EnrollmentID:   e.ID,
		EnrollmentCode: e.EnrollmentCode,
		UserID:         user.ID,
		UserName:       user.Name,
		UserEmail:      user.Email,
		CourseID:       course.ID,
		CourseTitle:    course.Title,
		CourseDuration: course.DurationDisplay,
		OrderID:        e.OrderID,
		PaymentID:      e.TransactionID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		EnrolledAt:     e.EnrolledAt,
	}

	if err := s.notifier.DispatchEnrollmentCompleted(event); err != nil {
		s.logger.Warn("Failed to dispatch enrollment notification",
			zap.String("enrollment_id", e.ID),
			zap.Error(err))
	}
}

func (s *EnrollmentService) currencyFor(course *models.Course) string {
	if course.Currency != "" {
		return course.Currency
	}
	return s.opts.DefaultCurrency
}

func enrollmentLockKey(userID, courseID string) string {
	return fmt.Sprintf("enroll:%s:%s", userID, courseID)
}

func verifiedOrderKey(orderID string) string {
	return fmt.Sprintf("verify:%s", orderID)
}

// newEnrollmentCode returns "ENR" + base36 millis + 4 random characters
func newEnrollmentCode(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return strings.ToUpper("ENR" + strconv.FormatInt(now.UnixMilli(), 36) + suffix)
}

// toMinorUnits converts a price to the gateway's smallest currency unit
func toMinorUnits(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}

func pendingFromOrder(o *gateway.Order) *models.PendingOrder {
	return &models.PendingOrder{
		OrderID:  o.ID,
		CourseID: o.Notes["courseId"],
		UserID:   o.Notes["userId"],
		Amount:   o.Amount,
		Currency: o.Currency,
	}
}

func upstreamError(fallback string, err error) *Error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Description != "" {
		return newError(KindUpstream, gwErr.Description, err)
	}
	return newError(KindUpstream, fallback, err)
}
