package gatewaytest

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"seatsync/api"
	"seatsync/shared"
)

// APIFixture backs the storefront HTTP fixture with scriptable data.
type APIFixture struct {
	mu sync.Mutex

	Events      []api.Event
	Plans       map[string]*api.SeatPlan
	Orders      map[string]*api.Order
	Holds       map[string]string // "eventID/seatID" -> sessionID
	Venues      []api.VenueTemplate
	ValidToken  string
	ExpireToken bool // force 401 on authenticated endpoints
}

func NewAPIFixture() *APIFixture {
	return &APIFixture{
		Plans:      make(map[string]*api.SeatPlan),
		Orders:     make(map[string]*api.Order),
		Holds:      make(map[string]string),
		ValidToken: "test-token",
	}
}

// Router builds the gin router serving the storefront endpoints the api
// client consumes. Mount it with httptest.NewServer.
func (f *APIFixture) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/events", f.handleListEvents)
		apiGroup.GET("/events/:id", f.handleGetEvent)
		apiGroup.GET("/events/:id/seats", f.handleSeatPlan)
		apiGroup.POST("/events/:id/seats/hold", f.handleHoldSeat)
		apiGroup.POST("/events/:id/seats/release", f.handleReleaseSeat)

		apiGroup.POST("/orders/checkout-intent", f.authed(f.handleCheckoutIntent))
		apiGroup.POST("/orders/:id/finalize", f.authed(f.handleFinalizeOrder))
		apiGroup.GET("/orders/:id", f.authed(f.handleGetOrder))
		apiGroup.GET("/orders", f.authed(f.handleListOrders))

		apiGroup.POST("/auth/login", f.handleLogin)
		apiGroup.POST("/auth/register", f.handleLogin)
		apiGroup.GET("/auth/me", f.authed(f.handleMe))
		apiGroup.POST("/staff/auth/login", f.handleLogin)
		apiGroup.GET("/staff/auth/me", f.authed(f.handleMe))

		apiGroup.POST("/admin/venues/preview", f.authed(f.handleVenuePreview))
		apiGroup.POST("/admin/venues", f.authed(f.handleVenueCreate))
		apiGroup.GET("/admin/venues", f.authed(f.handleVenueList))
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func (f *APIFixture) authed(handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		valid := "Bearer " + f.ValidToken
		expired := f.ExpireToken
		f.mu.Unlock()
		if expired || c.GetHeader("Authorization") != valid {
			c.JSON(http.StatusUnauthorized, shared.ErrorResponse{Error: "invalid or expired token"})
			return
		}
		handler(c)
	}
}

func (f *APIFixture) handleListEvents(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.Events)
}

func (f *APIFixture) handleGetEvent(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.Events {
		if event.ID == c.Param("id") {
			c.JSON(http.StatusOK, event)
			return
		}
	}
	c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: "event not found"})
}

func (f *APIFixture) handleSeatPlan(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan, ok := f.Plans[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: "event not found"})
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (f *APIFixture) handleHoldSeat(c *gin.Context) {
	var req api.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad request"})
		return
	}
	key := c.Param("id") + "/" + req.SeatID
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, held := f.Holds[key]; held && holder != req.SessionID {
		c.JSON(http.StatusConflict, shared.ErrorResponse{Error: "seat is already held"})
		return
	}
	f.Holds[key] = req.SessionID
	c.JSON(http.StatusOK, api.Hold{SeatID: req.SeatID, ExpiresAt: time.Now().Add(5 * time.Minute)})
}

func (f *APIFixture) handleReleaseSeat(c *gin.Context) {
	var req api.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad request"})
		return
	}
	key := c.Param("id") + "/" + req.SeatID
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Holds[key] != req.SessionID {
		c.JSON(http.StatusConflict, shared.ErrorResponse{Error: "seat is not held by this session"})
		return
	}
	delete(f.Holds, key)
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (f *APIFixture) handleCheckoutIntent(c *gin.Context) {
	var req api.CheckoutIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad request"})
		return
	}
	orderID := uuid.NewString()
	f.mu.Lock()
	f.Orders[orderID] = &api.Order{
		ID:          orderID,
		EventID:     req.EventID,
		SeatIDs:     req.SeatIDs,
		Status:      "pending",
		AmountCents: 2500 * len(req.SeatIDs),
		CreatedAt:   time.Now(),
	}
	f.mu.Unlock()
	c.JSON(http.StatusOK, api.CheckoutIntent{
		OrderID:      orderID,
		ClientSecret: "pi_" + orderID,
		AmountCents:  2500 * len(req.SeatIDs),
		Currency:     "usd",
	})
}

func (f *APIFixture) handleFinalizeOrder(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.Orders[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: "order not found"})
		return
	}
	order.Status = "paid"
	c.JSON(http.StatusOK, order)
}

func (f *APIFixture) handleGetOrder(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.Orders[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: "order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (f *APIFixture) handleListOrders(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make([]api.Order, 0, len(f.Orders))
	for _, order := range f.Orders {
		orders = append(orders, *order)
	}
	c.JSON(http.StatusOK, orders)
}

func (f *APIFixture) handleLogin(c *gin.Context) {
	var creds api.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil || creds.Email == "" {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad credentials"})
		return
	}
	f.mu.Lock()
	token := f.ValidToken
	f.mu.Unlock()
	c.JSON(http.StatusOK, api.AuthResponse{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		User:         api.User{ID: uuid.NewString(), Email: creds.Email, Name: "Test User"},
	})
}

func (f *APIFixture) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, api.User{ID: "user-1", Email: "me@example.com", Name: "Test User"})
}

func (f *APIFixture) handleVenuePreview(c *gin.Context) {
	var req api.VenueTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad request"})
		return
	}
	c.JSON(http.StatusOK, generateVenue(req))
}

func (f *APIFixture) handleVenueCreate(c *gin.Context) {
	var req api.VenueTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "bad request"})
		return
	}
	tpl := generateVenue(req)
	tpl.ID = uuid.NewString()
	f.mu.Lock()
	f.Venues = append(f.Venues, tpl)
	f.mu.Unlock()
	c.JSON(http.StatusCreated, tpl)
}

func (f *APIFixture) handleVenueList(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.Venues)
}

func generateVenue(req api.VenueTemplateRequest) api.VenueTemplate {
	seats := make([]string, 0, req.Rows*req.Cols)
	for row := 0; row < req.Rows; row++ {
		for col := 0; col < req.Cols; col++ {
			seats = append(seats, fmt.Sprintf("%c%d", 'A'+row, col+1))
		}
	}
	return api.VenueTemplate{Name: req.Name, Rows: req.Rows, Cols: req.Cols, Seats: seats}
}
