package api

import (
	"context"
	"net/http"
	"time"

	"enrollment-service/internal/gateway"
	"enrollment-service/internal/models"
	"enrollment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EnrollmentService is the checkout and enrollment workflow
type EnrollmentService interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error)
	GetEnrollment(ctx context.Context, caller service.Caller, id string) (*models.EnrollmentWithCourse, error)
	ListEnrollments(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error)
}

// PaymentService is the admin gateway pass-through
type PaymentService interface {
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	Refund(ctx context.Context, req *service.RefundRequest) (*gateway.Refund, error)
}

// UserService handles registration and login
type UserService interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*service.AuthResponse, error)
	Login(ctx context.Context, req *service.LoginRequest) (*service.AuthResponse, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	enrollments EnrollmentService
	payments    PaymentService
	users       UserService
	auth        *AuthMiddleware
	checks      map[string]ReadinessCheck
	production  bool
}

// NewHandler creates a new HTTP handler
func NewHandler(
	enrollments EnrollmentService,
	payments PaymentService,
	users UserService,
	tokens TokenValidator,
	checks map[string]ReadinessCheck,
	production bool,
) *Handler {
	return &Handler{
		enrollments: enrollments,
		payments:    payments,
		users:       users,
		auth:        NewAuthMiddleware(tokens),
		checks:      checks,
		production:  production,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	binding.EnableDecoderDisallowUnknownFields = true

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	payment := api.Group("/payment", h.auth.Required())
	{
		payment.POST("/create-order", h.createOrder)
		payment.POST("/verify", h.verifyPayment)
		payment.POST("/refund", h.auth.RequireAdmin(), h.refundPayment)
		payment.GET("/:paymentId", h.auth.RequireAdmin(), h.getPayment)
	}

	enrollments := api.Group("/enrollments", h.auth.Required())
	{
		enrollments.GET("", h.listEnrollments)
		enrollments.GET("/:id", h.getEnrollment)
	}

	users := api.Group("/users")
	{
		users.POST("/register", h.register)
		users.POST("/login", h.login)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports 503 if any dependency check fails
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder opens a gateway order for a course purchase
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if req.UserID != "" && !callerFrom(c).CanActFor(req.UserID) {
		forbidden(c, "Not authorized to create an order for this user")
		return
	}

	resp, err := h.enrollments.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*service.CreateOrderResponse
	}{true, resp})
}

// verifyPayment checks the checkout callback and creates the enrollment
func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if req.UserID != "" && !callerFrom(c).CanActFor(req.UserID) {
		forbidden(c, "Not authorized to verify a payment for this user")
		return
	}

	enrollment, err := h.enrollments.VerifyPayment(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Payment verified successfully. You are now enrolled!",
		"enrollment": enrollment,
	})
}

// getPayment returns gateway payment details (admin)
func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payment": payment,
	})
}

// refundPayment passes a refund to the gateway (admin)
func (h *Handler) refundPayment(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	refund, err := h.payments.Refund(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Refund processed successfully",
		"refund":  refund,
	})
}

// listEnrollments returns the caller's enrollments
func (h *Handler) listEnrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListEnrollments(c.Request.Context(), callerFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(enrollments),
		"data":    enrollments,
	})
}

// getEnrollment returns one enrollment owned by the caller
func (h *Handler) getEnrollment(c *gin.Context) {
	enrollment, err := h.enrollments.GetEnrollment(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    enrollment,
	})
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"data":    resp,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.users.Login(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}
