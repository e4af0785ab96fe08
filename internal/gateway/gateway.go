// Package gateway exposes the escrow operations over HTTP and streams
// notifications to websocket subscribers.
package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hman38705/SwiftRemit/internal/auth"
	"github.com/hman38705/SwiftRemit/internal/escrow"
	"github.com/hman38705/SwiftRemit/internal/limits"
)

// Gateway is the HTTP surface over the escrow core.
type Gateway struct {
	router *gin.Engine
	escrow *escrow.Service
	auth   *auth.Service
	feed   *Feed
}

// NewGateway wires routes over the escrow service. The feed may be nil when
// no event source is configured.
func NewGateway(es *escrow.Service, as *auth.Service, feed *Feed) *Gateway {
	g := &Gateway{
		router: gin.Default(),
		escrow: es,
		auth:   as,
		feed:   feed,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/initialize", g.authMiddleware(), g.initialize)

		v1.GET("/fee", g.getFee)
		v1.PUT("/fee", g.authMiddleware(), g.updateFee)

		v1.POST("/agents", g.authMiddleware(), g.registerAgent)
		v1.DELETE("/agents/:address", g.authMiddleware(), g.removeAgent)
		v1.GET("/agents/:address", g.getAgent)

		v1.PUT("/limits", g.authMiddleware(), g.setDailyLimit)
		v1.GET("/limits", g.getDailyLimit)

		v1.POST("/remittances", g.authMiddleware(), g.createRemittance)
		v1.GET("/remittances/:id", g.getRemittance)
		v1.POST("/remittances/:id/confirm", g.authMiddleware(), g.confirmPayout)
		v1.POST("/remittances/:id/cancel", g.authMiddleware(), g.cancelRemittance)

		v1.GET("/fees/accumulated", g.getAccumulatedFees)
		v1.POST("/fees/withdraw", g.authMiddleware(), g.withdrawFees)

		if g.feed != nil {
			v1.GET("/ws/events", g.feed.Handle)
		}
	}
}

// Start runs the HTTP server.
func (g *Gateway) Start(addr string) error {
	return g.router.Run(addr)
}

// Handler exposes the router for tests and custom servers.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		address, err := g.auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("principal", address)
		c.Next()
	}
}

func principal(c *gin.Context) string {
	return c.GetString("principal")
}

func (g *Gateway) initialize(c *gin.Context) {
	var req struct {
		Admin  string `json:"admin" binding:"required"`
		Token  string `json:"token" binding:"required"`
		FeeBps int64  `json:"fee_bps"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.escrow.Initialize(c.Request.Context(), principal(c), req.Admin, req.Token, req.FeeBps); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "initialized"})
}

func (g *Gateway) getFee(c *gin.Context) {
	feeBps, err := g.escrow.PlatformFeeBps(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_bps": feeBps})
}

func (g *Gateway) updateFee(c *gin.Context) {
	var req struct {
		FeeBps int64 `json:"fee_bps"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.escrow.UpdateFee(c.Request.Context(), principal(c), req.FeeBps); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_bps": req.FeeBps})
}

func (g *Gateway) registerAgent(c *gin.Context) {
	var req struct {
		Agent string `json:"agent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.escrow.RegisterAgent(c.Request.Context(), principal(c), req.Agent); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent": req.Agent, "registered": true})
}

func (g *Gateway) removeAgent(c *gin.Context) {
	agent := c.Param("address")
	if err := g.escrow.RemoveAgent(c.Request.Context(), principal(c), agent); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent, "registered": false})
}

func (g *Gateway) getAgent(c *gin.Context) {
	agent := c.Param("address")
	registered, err := g.escrow.IsAgentRegistered(c.Request.Context(), agent)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent, "registered": registered})
}

func (g *Gateway) setDailyLimit(c *gin.Context) {
	var req struct {
		Currency string `json:"currency" binding:"required"`
		Country  string `json:"country" binding:"required"`
		Limit    int64  `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.escrow.SetDailyLimit(c.Request.Context(), principal(c), req.Currency, req.Country, req.Limit); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": req.Currency, "country": req.Country, "limit": req.Limit})
}

func (g *Gateway) getDailyLimit(c *gin.Context) {
	currency := c.Query("currency")
	country := c.Query("country")

	limit, configured, err := g.escrow.DailyLimit(c.Request.Context(), currency, country)
	if err != nil {
		g.fail(c, err)
		return
	}
	if !configured {
		c.JSON(http.StatusOK, gin.H{"currency": currency, "country": country, "configured": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": currency, "country": country, "configured": true, "limit": limit})
}

func (g *Gateway) createRemittance(c *gin.Context) {
	var req struct {
		Agent    string `json:"agent" binding:"required"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency" binding:"required"`
		Country  string `json:"country" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The authenticated principal is the sender.
	id, err := g.escrow.CreateRemittance(c.Request.Context(), principal(c), req.Agent, req.Amount, req.Currency, req.Country)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (g *Gateway) getRemittance(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remittance id"})
		return
	}

	rec, err := g.escrow.GetRemittance(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (g *Gateway) confirmPayout(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remittance id"})
		return
	}

	if err := g.escrow.ConfirmPayout(c.Request.Context(), principal(c), id); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": escrow.StatusCompleted})
}

func (g *Gateway) cancelRemittance(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remittance id"})
		return
	}

	if err := g.escrow.CancelRemittance(c.Request.Context(), principal(c), id); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": escrow.StatusCancelled})
}

func (g *Gateway) getAccumulatedFees(c *gin.Context) {
	fees, err := g.escrow.AccumulatedFees(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accumulated_fees": fees})
}

func (g *Gateway) withdrawFees(c *gin.Context) {
	var req struct {
		Recipient string `json:"recipient" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.escrow.WithdrawFees(c.Request.Context(), principal(c), req.Recipient); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipient": req.Recipient})
}

// fail maps escrow error kinds to HTTP statuses.
func (g *Gateway) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrNotInitialized),
		errors.Is(err, escrow.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidFee):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrRemittanceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrAgentNotRegistered),
		errors.Is(err, escrow.ErrInvalidStatus),
		errors.Is(err, escrow.ErrNoFeesToWithdraw):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, limits.ErrLimitExceeded),
		errors.Is(err, limits.ErrOverflow):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
