// Package httpapi exposes the REST and WebSocket surface over the saga's
// services.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"freightline/internal/inventory"
	"freightline/internal/observability"
	"freightline/internal/orders"
	"freightline/internal/realtime"
	"freightline/internal/reliability"
	"freightline/internal/shipping"
	"freightline/internal/status"
)

// Server holds the handler dependencies.
type Server struct {
	intake    *orders.Intake
	inventory *inventory.Service
	ledger    *status.Ledger
	ships     *shipping.Engine
	hub       *realtime.Hub
	metrics   *observability.Metrics
	limiter   *reliability.RateLimiter
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewServer constructs the HTTP server. hub, metrics and limiter may be nil.
func NewServer(
	intake *orders.Intake,
	inventorySvc *inventory.Service,
	ledger *status.Ledger,
	ships *shipping.Engine,
	hub *realtime.Hub,
	metrics *observability.Metrics,
	limiter *reliability.RateLimiter,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		intake:    intake,
		inventory: inventorySvc,
		ledger:    ledger,
		ships:     ships,
		hub:       hub,
		metrics:   metrics,
		limiter:   limiter,
		logger:    logger,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())
	if s.limiter != nil {
		r.Use(s.rateLimit())
	}

	api := r.Group("/api")
	api.POST("/orders", s.submitOrder)
	api.POST("/inventory/check", s.checkInventory)
	api.GET("/order-status/all", s.listStatuses)
	api.GET("/ships", s.listShips)
	api.POST("/ships", s.addShip)

	r.GET("/ws/status", s.statusFeed)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.GET("/healthz", s.health)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type orderRequest struct {
	CustomerID         string `json:"customerId"`
	DestinationCountry string `json:"destinationCountry"`
	CorrelationKey     string `json:"correlationKey"`
	Items              []struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	} `json:"items"`
}

type orderResponse struct {
	OrderID            int64     `json:"orderId"`
	CustomerID         string    `json:"customerId"`
	DestinationCountry string    `json:"destinationCountry"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (s *Server) submitOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	submit := orders.SubmitRequest{
		CustomerID:         req.CustomerID,
		DestinationCountry: req.DestinationCountry,
		CorrelationKey:     req.CorrelationKey,
	}
	for _, item := range req.Items {
		submit.Items = append(submit.Items, orders.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := s.intake.Submit(c.Request.Context(), submit)
	switch {
	case errors.Is(err, orders.ErrInventoryUnavailable):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusCreated, orderResponse{
			OrderID:            order.ID,
			CustomerID:         order.CustomerID,
			DestinationCountry: order.DestinationCountry,
			CreatedAt:          order.CreatedAt,
		})
	}
}

func (s *Server) checkInventory(c *gin.Context) {
	var req inventory.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	resp, err := s.inventory.CheckAndReserve(c.Request.Context(), req)
	if err != nil {
		s.logger.Error("inventory check", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "inventory check failed"})
		return
	}
	if !resp.Available {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listStatuses(c *gin.Context) {
	all, err := s.ledger.ListAll(c.Request.Context())
	if err != nil {
		s.logger.Error("list statuses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not list statuses"})
		return
	}
	c.JSON(http.StatusOK, all)
}

type shipRequest struct {
	DestinationCountry string    `json:"destinationCountry"`
	DepartureDate      time.Time `json:"departureDate"`
}

type shipResponse struct {
	ShipID             int64     `json:"shipId"`
	DestinationCountry string    `json:"destinationCountry"`
	TotalOrders        int       `json:"totalOrders"`
	DepartureDate      time.Time `json:"departureDate"`
}

func (s *Server) addShip(c *gin.Context) {
	var req shipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.DestinationCountry == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "destinationCountry is required"})
		return
	}

	ship, err := s.ships.AddShip(c.Request.Context(), shipping.ShipTracking{
		DestinationCountry: req.DestinationCountry,
		DepartureDate:      req.DepartureDate,
	})
	if err != nil {
		s.logger.Error("add ship", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not register ship"})
		return
	}
	c.JSON(http.StatusCreated, toShipResponse(ship))
}

func (s *Server) listShips(c *gin.Context) {
	ships, err := s.ships.ListShips(c.Request.Context())
	if err != nil {
		s.logger.Error("list ships", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not list ships"})
		return
	}
	out := make([]shipResponse, len(ships))
	for i, ship := range ships {
		out[i] = toShipResponse(ship)
	}
	c.JSON(http.StatusOK, out)
}

func toShipResponse(ship shipping.ShipTracking) shipResponse {
	return shipResponse{
		ShipID:             ship.ShipID,
		DestinationCountry: ship.DestinationCountry,
		TotalOrders:        ship.TotalOrders,
		DepartureDate:      ship.DepartureDate,
	}
}

// statusFeed upgrades the connection and hands it to the hub. The hub owns
// the connection lifecycle from then on.
func (s *Server) statusFeed(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "status feed disabled"})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	s.hub.Register <- conn
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
