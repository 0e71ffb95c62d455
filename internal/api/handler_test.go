package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/auth"
	"enrollment-service/internal/gateway"
	"enrollment-service/internal/models"
	"enrollment-service/internal/service"
	"enrollment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type stubEnrollments struct {
	createOrder func(*service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	verify      func(*service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error)
	get         func(service.Caller, string) (*models.EnrollmentWithCourse, error)
	list        func(string) ([]models.EnrollmentWithCourse, error)
}

func (s *stubEnrollments) CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error) {
	return s.createOrder(req)
}

func (s *stubEnrollments) VerifyPayment(ctx context.Context, req *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error) {
	return s.verify(req)
}

func (s *stubEnrollments) GetEnrollment(ctx context.Context, caller service.Caller, id string) (*models.EnrollmentWithCourse, error) {
	return s.get(caller, id)
}

func (s *stubEnrollments) ListEnrollments(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	return s.list(userID)
}

type stubPayments struct {
	get    func(string) (*gateway.Payment, error)
	refund func(*service.RefundRequest) (*gateway.Refund, error)
}

func (s *stubPayments) GetPayment(ctx context.Context, id string) (*gateway.Payment, error) {
	return s.get(id)
}

func (s *stubPayments) Refund(ctx context.Context, req *service.RefundRequest) (*gateway.Refund, error) {
	return s.refund(req)
}

type stubUsers struct {
	register func(*service.RegisterRequest) (*service.AuthResponse, error)
	login    func(*service.LoginRequest) (*service.AuthResponse, error)
}

func (s *stubUsers) Register(ctx context.Context, req *service.RegisterRequest) (*service.AuthResponse, error) {
	return s.register(req)
}

func (s *stubUsers) Login(ctx context.Context, req *service.LoginRequest) (*service.AuthResponse, error) {
	return s.login(req)
}

type testServer struct {
	router      *gin.Engine
	jwt         *auth.JWTManager
	enrollments *stubEnrollments
	payments    *stubPayments
	users       *stubUsers
	checks      map[string]ReadinessCheck
}

func newTestServer(t *testing.T, production bool) *testServer {
	t.Helper()

	ts := &testServer{
		jwt:         auth.NewJWTManager(config.AuthConfig{JWTSecret: "test-secret", ExpiryHours: 1}),
		enrollments: &stubEnrollments{},
		payments:    &stubPayments{},
		users:       &stubUsers{},
		checks:      map[string]ReadinessCheck{},
	}

	h := NewHandler(ts.enrollments, ts.payments, ts.users, ts.jwt, ts.checks, production)
	ts.router = gin.New()
	h.SetupRoutes(ts.router)
	return ts
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(&models.User{ID: userID, Email: userID + "@example.com", Role: role})
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func errorMessage(body map[string]interface{}) string {
	msg, _ := body["message"].(string)
	return msg
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)

	w, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadiness(t *testing.T) {
	ts := newTestServer(t, false)
	ts.checks["postgres"] = func(ctx context.Context) error { return nil }

	w, _ := ts.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.checks["redis"] = func(ctx context.Context) error { return errors.New("connection refused") }
	w, body := ts.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["failed"], "redis")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, false)

	w, body := ts.do(t, http.MethodPost, "/api/payment/create-order", "", map[string]string{"courseId": "c1", "userId": "u1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = ts.do(t, http.MethodPost, "/api/payment/create-order", "garbage", map[string]string{"courseId": "c1", "userId": "u1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_Success(t *testing.T) {
	ts := newTestServer(t, false)
	ts.enrollments.createOrder = func(req *service.CreateOrderRequest) (*service.CreateOrderResponse, error) {
		assert.Equal(t, "course-1", req.CourseID)
		return &service.CreateOrderResponse{
			OrderID:  "order_test1",
			Amount:   8500000,
			Currency: "INR",
			KeyID:    "rzp_test_key",
			Course:   service.CourseSummary{ID: "course-1", Title: "Full Stack Development", Price: 85000},
			User:     service.UserSummary{ID: "user-1", Name: "Asha", Email: "asha@example.com"},
		}, nil
	}

	w, body := ts.do(t, http.MethodPost, "/api/payment/create-order", ts.token(t, "user-1", models.RoleUser),
		map[string]string{"courseId": "course-1", "userId": "user-1"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "order_test1", body["orderId"])
	assert.Equal(t, float64(8500000), body["amount"])
	assert.Equal(t, "INR", body["currency"])
	assert.Equal(t, "rzp_test_key", body["keyId"])
	course := body["course"].(map[string]interface{})
	assert.Equal(t, float64(85000), course["price"])
}

func TestCreateOrder_OtherUserForbidden(t *testing.T) {
	ts := newTestServer(t, false)

	w, _ := ts.do(t, http.MethodPost, "/api/payment/create-order", ts.token(t, "user-2", models.RoleUser),
		map[string]string{"courseId": "course-1", "userId": "user-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateOrder_AdminMayActForUser(t *testing.T) {
	ts := newTestServer(t, false)
	ts.enrollments.createOrder = func(req *service.CreateOrderRequest) (*service.CreateOrderResponse, error) {
		return &service.CreateOrderResponse{OrderID: "order_1"}, nil
	}

	w, _ := ts.do(t, http.MethodPost, "/api/payment/create-order", ts.token(t, "admin-1", models.RoleAdmin),
		map[string]string{"courseId": "course-1", "userId": "user-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrder_UnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t, false)

	w, body := ts.do(t, http.MethodPost, "/api/payment/create-order", ts.token(t, "user-1", models.RoleUser),
		`{"courseId":"course-1","userId":"user-1","amount":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", errorMessage(body))
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "already enrolled",
			err:    &service.Error{Kind: service.KindConflict, Message: "You are already enrolled in this course", Err: service.ErrAlreadyEnrolled},
			status: http.StatusBadRequest,
			msg:    "You are already enrolled in this course",
		},
		{
			name:   "missing ids",
			err:    &service.Error{Kind: service.KindValidation, Message: "Course ID and User ID are required"},
			status: http.StatusBadRequest,
			msg:    "Course ID and User ID are required",
		},
		{
			name:   "course not found",
			err:    &service.Error{Kind: service.KindNotFound, Message: "Course not found"},
			status: http.StatusNotFound,
			msg:    "Course not found",
		},
		{
			name:   "gateway failure",
			err:    &service.Error{Kind: service.KindUpstream, Message: "Authentication failed", Err: errors.New("razorpay: Authentication failed (BAD_REQUEST_ERROR)")},
			status: http.StatusInternalServerError,
			msg:    "Authentication failed",
		},
		{
			name:   "untyped error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			msg:    "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.enrollments.createOrder = func(*service.CreateOrderRequest) (*service.CreateOrderResponse, error) {
				return nil, tt.err
			}

			w, body := ts.do(t, http.MethodPost, "/api/payment/create-order", ts.token(t, "user-1", models.RoleUser),
				map[string]string{"courseId": "course-1", "userId": "user-1"})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.msg, errorMessage(body))
		})
	}
}

func TestVerifyPayment_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid signature", &service.Error{Kind: service.KindVerification, Message: "Payment verification failed. Invalid signature."}, http.StatusBadRequest},
		{"in progress", &service.Error{Kind: service.KindConflict, Message: "Payment verification already in progress"}, http.StatusConflict},
		{"replay", &service.Error{Kind: service.KindConflict, Message: "You are already enrolled in this course", Err: service.ErrAlreadyEnrolled}, http.StatusBadRequest},
		{"not found", &service.Error{Kind: service.KindNotFound, Message: "Course or User not found"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.enrollments.verify = func(*service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error) {
				return nil, tt.err
			}

			w, _ := ts.do(t, http.MethodPost, "/api/payment/verify", ts.token(t, "user-1", models.RoleUser), map[string]string{
				"razorpay_order_id":   "order_1",
				"razorpay_payment_id": "pay_1",
				"razorpay_signature":  "sig",
				"courseId":            "course-1",
				"userId":              "user-1",
			})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestVerifyPayment_MissingFieldsReachService(t *testing.T) {
	ts := newTestServer(t, false)
	called := false
	ts.enrollments.verify = func(req *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error) {
		called = true
		assert.Empty(t, req.Signature)
		return nil, &service.Error{Kind: service.KindValidation, Message: "Payment verification data is incomplete"}
	}

	w, body := ts.do(t, http.MethodPost, "/api/payment/verify", ts.token(t, "user-1", models.RoleUser), map[string]string{
		"razorpay_order_id": "order_1",
		"userId":            "user-1",
	})
	assert.True(t, called)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Payment verification data is incomplete", errorMessage(body))
}

func TestVerifyPayment_Success(t *testing.T) {
	ts := newTestServer(t, false)
	enrolledAt := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	ts.enrollments.verify = func(req *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error) {
		assert.Equal(t, "pay_test123", req.PaymentID)
		assert.Equal(t, "sig", req.Signature)
		return &service.VerifyPaymentResponse{
			ID: "enr-1", EnrollmentCode: "ENRABC", OrderID: req.OrderID, PaymentID: req.PaymentID,
			Course: "Full Stack Development", EnrolledAt: enrolledAt,
		}, nil
	}

	w, body := ts.do(t, http.MethodPost, "/api/payment/verify", ts.token(t, "user-1", models.RoleUser), map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_test123",
		"razorpay_signature":  "sig",
		"courseId":            "course-1",
		"userId":              "user-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	enrollment := body["enrollment"].(map[string]interface{})
	assert.Equal(t, "ENRABC", enrollment["enrollmentCode"])
	assert.Equal(t, "pay_test123", enrollment["paymentId"])
	assert.Equal(t, "Full Stack Development", enrollment["course"])
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, false)
	ts.payments.get = func(id string) (*gateway.Payment, error) {
		return &gateway.Payment{ID: id, Amount: 8500000, Status: "captured"}, nil
	}
	ts.payments.refund = func(req *service.RefundRequest) (*gateway.Refund, error) {
		assert.Equal(t, 500.0, req.Amount)
		return &gateway.Refund{ID: "rfnd_1", PaymentID: req.PaymentID, Amount: 50000}, nil
	}

	userToken := ts.token(t, "user-1", models.RoleUser)
	adminToken := ts.token(t, "admin-1", models.RoleAdmin)

	w, _ := ts.do(t, http.MethodGet, "/api/payment/pay_1", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := ts.do(t, http.MethodGet, "/api/payment/pay_1", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pay_1", body["payment"].(map[string]interface{})["id"])

	w, _ = ts.do(t, http.MethodPost, "/api/payment/refund", userToken, map[string]interface{}{"paymentId": "pay_1", "amount": 500})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = ts.do(t, http.MethodPost, "/api/payment/refund", adminToken, map[string]interface{}{"paymentId": "pay_1", "amount": 500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Refund processed successfully", body["message"])
	assert.Equal(t, "rfnd_1", body["refund"].(map[string]interface{})["id"])
}

func TestProductionHidesInternalDetails(t *testing.T) {
	upstream := &service.Error{Kind: service.KindUpstream, Message: "Failed to fetch payment details", Err: errors.New("dial tcp 10.0.0.7:443: i/o timeout")}

	dev := newTestServer(t, false)
	dev.payments.get = func(string) (*gateway.Payment, error) { return nil, upstream }
	_, body := dev.do(t, http.MethodGet, "/api/payment/pay_1", dev.token(t, "admin-1", models.RoleAdmin), nil)
	assert.Contains(t, body["error"].(map[string]interface{})["details"], "i/o timeout")

	prod := newTestServer(t, true)
	prod.payments.get = func(string) (*gateway.Payment, error) { return nil, upstream }
	w, body := prod.do(t, http.MethodGet, "/api/payment/pay_1", prod.token(t, "admin-1", models.RoleAdmin), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch payment details", errorMessage(body))
	assert.NotContains(t, body["error"].(map[string]interface{}), "details")
}

func TestEnrollmentRoutes(t *testing.T) {
	ts := newTestServer(t, false)
	ts.enrollments.list = func(userID string) ([]models.EnrollmentWithCourse, error) {
		assert.Equal(t, "user-1", userID)
		return []models.EnrollmentWithCourse{{Enrollment: models.Enrollment{ID: "enr-1"}}}, nil
	}
	ts.enrollments.get = func(caller service.Caller, id string) (*models.EnrollmentWithCourse, error) {
		if caller.UserID != "user-1" {
			return nil, &service.Error{Kind: service.KindForbidden, Message: "Not authorized to view this enrollment"}
		}
		return &models.EnrollmentWithCourse{Enrollment: models.Enrollment{ID: id}}, nil
	}

	w, body := ts.do(t, http.MethodGet, "/api/enrollments", ts.token(t, "user-1", models.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = ts.do(t, http.MethodGet, "/api/enrollments/enr-1", ts.token(t, "user-1", models.RoleUser), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/enrollments/enr-1", ts.token(t, "user-2", models.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t, false)

	w, body := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name":     "Asha",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", errorMessage(body))
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "Invalid email format", details["email"])
	assert.Equal(t, "Password must be at least 8 characters", details["password"])
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t, false)
	user := &models.User{ID: "user-1", Email: "asha@example.com", Role: models.RoleUser}
	ts.users.register = func(req *service.RegisterRequest) (*service.AuthResponse, error) {
		return &service.AuthResponse{Token: "tok", User: user}, nil
	}
	ts.users.login = func(req *service.LoginRequest) (*service.AuthResponse, error) {
		if req.Password != "correct horse" {
			return nil, &service.Error{Kind: service.KindUnauthorized, Message: "Invalid email or password"}
		}
		return &service.AuthResponse{Token: "tok", User: user}, nil
	}

	w, body := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Asha", "email": "asha@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok", body["data"].(map[string]interface{})["token"])

	w, _ = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "asha@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
