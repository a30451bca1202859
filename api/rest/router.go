// Package rest is the HTTP/JSON gateway to the order service.
package rest

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"ladder/api/rpc"
	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
	"ladder/infra/cache"
	"ladder/infra/metrics"
	"ladder/service"
)

// Deps wires the gateway. Cache, Feed and Metrics may be nil.
type Deps struct {
	Service     *service.OrderService
	Ticks       ticks.Converter
	DepthLevels int
	Cache       *cache.DepthCache
	Feed        http.Handler
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type handler struct {
	Deps
	log *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	h := &handler{Deps: d, log: d.Logger.With("component", "http")}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "symbol": d.Service.Symbol()})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.POST("/orders", h.placeOrder)
	v1.GET("/orders/:id", h.getOrder)
	v1.DELETE("/orders/:id", h.cancelOrder)
	v1.GET("/depth", h.depth)
	v1.GET("/depth/table", h.depthTable)
	if d.Feed != nil {
		v1.GET("/feed", gin.WrapH(d.Feed))
	}
	return r
}

func (h *handler) placeOrder(c *gin.Context) {
	client, err := strconv.ParseUint(c.GetHeader(HeaderClientID), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, HeaderClientID+" header must be an unsigned integer")
		return
	}

	var req rpc.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	req.ClientID = client

	in, err := req.ToSubmit(h.Ticks)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.Service.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		h.fail(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, rpc.NewPlaceOrderResponse(res, h.Ticks))
}

func (h *handler) cancelOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	res, err := h.Service.CancelOrder(c.Request.Context(), id)
	if err != nil {
		h.fail(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, rpc.CancelOrderResponse{OrderID: uint64(res.OrderID), Remaining: res.Remaining})
}

func (h *handler) getOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	v, err := h.Service.Lookup(id)
	if err != nil {
		h.fail(c, statusOf(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":  v.ID,
		"client_id": v.Client,
		"side":      v.Side,
		"price":     h.Ticks.Format(v.Price),
		"qty":       v.Qty,
		"remaining": v.Remaining,
	})
}

func (h *handler) depth(c *gin.Context) {
	levels, ok := h.levels(c)
	if !ok {
		return
	}

	if c.Query("cached") == "1" && h.Cache != nil {
		cached, err := h.Cache.Get(c.Request.Context(), h.Service.Symbol())
		if err != nil {
			h.log.Warn("depth cache read failed", "err", err)
		}
		if cached != nil {
			resp := rpc.NewDepthResponse(h.Service.Symbol(), cached.Depth, h.Ticks)
			c.JSON(http.StatusOK, gin.H{"seq": cached.Seq, "at": cached.At, "bids": resp.Bids, "asks": resp.Asks, "symbol": resp.Symbol})
			return
		}
	}
	c.JSON(http.StatusOK, rpc.NewDepthResponse(h.Service.Symbol(), h.Service.Depth(levels), h.Ticks))
}

func (h *handler) depthTable(c *gin.Context) {
	levels, ok := h.levels(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, RenderDepth(h.Service.Depth(levels), h.Ticks, levels))
}

func (h *handler) orderID(c *gin.Context) (orderbook.OrderID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "order id must be an unsigned integer")
		return 0, false
	}
	return orderbook.OrderID(id), true
}

func (h *handler) levels(c *gin.Context) (int, bool) {
	v := c.Query("levels")
	if v == "" {
		return h.DepthLevels, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		h.fail(c, http.StatusBadRequest, "levels must be a positive integer")
		return 0, false
	}
	return n, true
}

func (h *handler) fail(c *gin.Context, code int, msg string) {
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg, "request_id": c.GetString(ctxRequestID)})
}

func statusOf(err error) int {
	switch {
	case matching.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, matching.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
