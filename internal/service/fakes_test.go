package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"enrollment-service/internal/gateway"
	"enrollment-service/internal/models"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type fakeStore struct {
	mu          sync.Mutex
	courses     map[string]*models.Course
	users       map[string]*models.User
	enrollments []*models.Enrollment
	createErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		courses: map[string]*models.Course{},
		users:   map[string]*models.User{},
	}
}

func (f *fakeStore) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrDuplicateEmail
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeStore) HasCompletedEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.UserID == userID && e.CourseID == courseID && e.PaymentStatus == models.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

// CreateEnrollment mirrors the partial unique index and the order_id index
func (f *fakeStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.enrollments {
		if existing.OrderID == e.OrderID {
			return store.ErrDuplicateEnrollment
		}
		if existing.UserID == e.UserID && existing.CourseID == e.CourseID &&
			existing.PaymentStatus == models.PaymentStatusCompleted && e.PaymentStatus == models.PaymentStatusCompleted {
			return store.ErrDuplicateEnrollment
		}
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	f.enrollments = append(f.enrollments, &cp)
	if c, ok := f.courses[e.CourseID]; ok {
		c.EnrollmentCount++
	}
	return nil
}

func (f *fakeStore) GetEnrollmentByID(ctx context.Context, id string) (*models.EnrollmentWithCourse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.ID == id {
			return &models.EnrollmentWithCourse{Enrollment: *e, CourseTitle: f.courses[e.CourseID].Title}, nil
		}
	}
	return nil, fmt.Errorf("enrollment %s: %w", id, store.ErrNotFound)
}

func (f *fakeStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentWithCourse
	for _, e := range f.enrollments {
		if e.UserID == userID {
			out = append(out, models.EnrollmentWithCourse{Enrollment: *e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) enrollmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enrollments)
}

type fakeGateway struct {
	mu            sync.Mutex
	orders        map[string]*gateway.Order
	orderCalls    int
	fetchCalls    int
	lastOrder     *gateway.OrderRequest
	lastRefund    *gateway.RefundRequest
	orderErr      error
	fetchOrderErr error
	paymentErr    error
	refundErr     error
	nextOrder     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: map[string]*gateway.Order{}}
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderCalls++
	g.lastOrder = req
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.nextOrder++
	order := &gateway.Order{
		ID:       fmt.Sprintf("order_test%d", g.nextOrder),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}
	paid := *order
	paid.Status = "paid"
	paid.AmountPaid = paid.Amount
	g.orders[order.ID] = &paid
	return order, nil
}

// FetchOrder returns orders as if the checkout had been paid in full
func (g *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchOrderErr != nil {
		return nil, g.fetchOrderErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, &gateway.Error{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "The id provided does not exist"}
	}
	cp := *o
	return &cp, nil
}

func (g *fakeGateway) putOrder(o *gateway.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[o.ID] = o
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	if g.paymentErr != nil {
		return nil, g.paymentErr
	}
	return &gateway.Payment{ID: paymentID, Entity: "payment", Amount: 8500000, Currency: "INR", Status: "captured"}, nil
}

func (g *fakeGateway) RefundPayment(ctx context.Context, paymentID string, req *gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRefund = req
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gateway.Refund{ID: "rfnd_test1", Entity: "refund", PaymentID: paymentID, Amount: req.Amount, Status: "processed"}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orderCalls
}

type fakeCache struct {
	mu       sync.Mutex
	locks    map[string]string
	pending  map[string]*models.PendingOrder
	keys     map[string]interface{}
	lockErr  error
	released int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		locks:   map[string]string{},
		pending: map[string]*models.PendingOrder{},
		keys:    map[string]interface{}{},
	}
}

func (c *fakeCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockErr != nil {
		return "", false, c.lockErr
	}
	if _, held := c.locks[lockKey]; held {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%s", lockKey)
	c.locks[lockKey] = token
	return token, true, nil
}

func (c *fakeCache) ReleaseLock(ctx context.Context, lockKey, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[lockKey] == token {
		delete(c.locks, lockKey)
		c.released++
	}
	return nil
}

func (c *fakeCache) SavePendingOrder(ctx context.Context, order *models.PendingOrder, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[order.OrderID] = order
	return nil
}

func (c *fakeCache) GetPendingOrder(ctx context.Context, orderID string) (*models.PendingOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[orderID], nil
}

func (c *fakeCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = value
	return nil
}

func (c *fakeCache) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*models.EnrollmentCompletedEvent
	err    error
	panics bool
}

func (n *fakeNotifier) DispatchEnrollmentCompleted(event *models.EnrollmentCompletedEvent) error {
	if n.panics {
		panic("dispatcher exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type fakeTokens struct{}

func (fakeTokens) GenerateToken(user *models.User) (string, error) {
	return "token-" + user.ID, nil
}
