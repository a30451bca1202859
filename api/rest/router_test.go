package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder/api/rpc"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
	"ladder/infra/cache"
	"ladder/infra/logging"
	"ladder/infra/metrics"
	"ladder/service"
)

var cents = ticks.MustConverter("0.01")

type fixture struct {
	router http.Handler
	svc    *service.OrderService
	cache  *cache.DepthCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	m := metrics.New(prometheus.NewRegistry())
	svc := service.NewOrderService(service.Options{Symbol: "LDR-USD", Metrics: m, Logger: log})

	mr := miniredis.RunT(t)
	dc := cache.NewDepthCache(mr.Addr(), "", 0, time.Minute)
	t.Cleanup(func() { _ = dc.Close() })

	return &fixture{
		router: NewRouter(Deps{
			Service:     svc,
			Ticks:       cents,
			DepthLevels: 5,
			Cache:       dc,
			Metrics:     m,
			Logger:      log,
		}),
		svc:   svc,
		cache: dc,
	}
}

func (f *fixture) do(t *testing.T, method, path, client, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if client != "" {
		req.Header.Set(HeaderClientID, client)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) place(t *testing.T, client, side, price string, qty int64) rpc.PlaceOrderResponse {
	t.Helper()
	body, err := json.Marshal(rpc.PlaceOrderRequest{Side: side, Price: price, Qty: qty})
	require.NoError(t, err)
	rec := f.do(t, http.MethodPost, "/v1/orders", client, string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out rpc.PlaceOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPlaceAndCancel(t *testing.T) {
	f := newFixture(t)

	res := f.place(t, "1", "bid", "1.00", 3)
	assert.Equal(t, uint64(0), res.OrderID)
	assert.Equal(t, "resting", res.Status)

	rec := f.do(t, http.MethodGet, "/v1/orders/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":"1.00"`)
	assert.Contains(t, rec.Body.String(), `"side":"bid"`)

	rec = f.do(t, http.MethodDelete, "/v1/orders/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cres rpc.CancelOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cres))
	assert.Equal(t, int64(3), cres.Remaining)

	rec = f.do(t, http.MethodDelete, "/v1/orders/0", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientIDUsedFromHeader(t *testing.T) {
	f := newFixture(t)
	f.place(t, "42", "ask", "2.00", 1)

	v, err := f.svc.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, orderbook.ClientID(42), v.Client)
}

func TestPlaceErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, client, body string
		code               int
	}{
		{"no client", "", `{"side":"bid","price":"1.00","qty":1}`, http.StatusBadRequest},
		{"bad client", "abc", `{"side":"bid","price":"1.00","qty":1}`, http.StatusBadRequest},
		{"bad json", "1", `{`, http.StatusBadRequest},
		{"bad side", "1", `{"side":"up","price":"1.00","qty":1}`, http.StatusBadRequest},
		{"off tick", "1", `{"side":"bid","price":"1.001","qty":1}`, http.StatusBadRequest},
		{"zero qty", "1", `{"side":"bid","price":"1.00","qty":0}`, http.StatusUnprocessableEntity},
		{"negative price", "1", `{"side":"bid","price":"-1.00","qty":1}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/orders", tc.client, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Zero(t, f.svc.Engine().Resting())

	rec := f.do(t, http.MethodDelete, "/v1/orders/x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepthAndTable(t *testing.T) {
	f := newFixture(t)
	f.place(t, "0", "bid", "0.90", 5)
	f.place(t, "0", "bid", "1.00", 3)
	f.place(t, "0", "ask", "1.10", 3)
	f.place(t, "0", "ask", "1.20", 2)
	f.place(t, "1", "ask", "1.10", 2)
	f.place(t, "1", "ask", "1.30", 6)

	rec := f.do(t, http.MethodGet, "/v1/depth?levels=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var d rpc.GetDepthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, []rpc.Level{{Price: "1.10", Quantity: 5, Orders: 2}, {Price: "1.20", Quantity: 2, Orders: 1}}, d.Asks)
	assert.Len(t, d.Bids, 2)

	rec = f.do(t, http.MethodGet, "/v1/depth/table", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	want := "" +
		"Bid Qty |   Price | Ask Qty\n" +
		"--------+---------+--------\n" +
		"        |    1.30 |       6\n" +
		"        |    1.20 |       2\n" +
		"        |    1.10 |       5\n" +
		"      3 |    1.00 |\n" +
		"      5 |    0.90 |\n"
	assert.Equal(t, want, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/depth?levels=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCachedDepth(t *testing.T) {
	f := newFixture(t)
	f.place(t, "0", "bid", "1.00", 3)

	// nothing cached yet: live view
	rec := f.do(t, http.MethodGet, "/v1/depth?cached=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"seq"`)

	require.NoError(t, f.cache.Set(context.Background(), "LDR-USD", cache.CachedDepth{
		Seq:   7,
		Depth: orderbook.Depth{Bids: []orderbook.LevelDepth{{Price: 90, Quantity: 1, Orders: 1}}},
	}))
	rec = f.do(t, http.MethodGet, "/v1/depth?cached=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"seq":7`)
	assert.Contains(t, rec.Body.String(), `"price":"0.90"`)
}

func TestRequestIDAndOps(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	f.place(t, "1", "bid", "1.00", 1)
	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ladder_submits_total{result="resting"} 1`)
}

func TestRenderDepthLimitsLevels(t *testing.T) {
	d := orderbook.Depth{
		Bids: []orderbook.LevelDepth{{Price: 100, Quantity: 1}, {Price: 90, Quantity: 2}},
		Asks: []orderbook.LevelDepth{{Price: 110, Quantity: 3}, {Price: 120, Quantity: 4}},
	}
	out := RenderDepth(d, cents, 1)
	assert.Equal(t, "Bid Qty |   Price | Ask Qty\n--------+---------+--------\n        |    1.10 |       3\n      1 |    1.00 |\n", out)

	empty := RenderDepth(orderbook.Depth{}, cents, 5)
	assert.Equal(t, 2, strings.Count(empty, "\n"))
}
