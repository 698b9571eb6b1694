package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/gregtusar/synthlong/pkg/screener"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valuation = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testProvider() *marketdata.StaticProvider {
	expiry := valuation.AddDate(0, 0, 120)
	leg := func(typ models.OptionType, strike, bid, ask float64) models.OptionQuote {
		return models.OptionQuote{Ticker: "AAPL", Expiry: expiry, Type: typ, Strike: strike, Bid: bid, Ask: ask, ImpliedVolatility: 0.25}
	}

	p := marketdata.NewStaticProvider()
	p.SetSpot("AAPL", 100)
	p.AddChain(models.OptionChain{
		Ticker: "AAPL",
		Expiry: expiry,
		Calls:  []models.OptionQuote{leg(models.OptionTypeCall, 100, 6.0, 6.4)},
		Puts:   []models.OptionQuote{leg(models.OptionTypePut, 90, 4.5, 4.7)},
	})
	return p
}

func newTestServer(t *testing.T, opts Options, withRunner bool) (*Server, *screener.Runner) {
	t.Helper()
	engine := strategy.NewEngine(testProvider(), quietLogger()).WithClock(func() time.Time { return valuation })
	params := strategy.DefaultParameters()

	var runner *screener.Runner
	if withRunner {
		runner = screener.NewRunner(engine, screener.Options{Tickers: []string{"AAPL"}, Params: params}, quietLogger())
	}
	return NewServer(engine, runner, params, opts, quietLogger()), runner
}

func do(s *Server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)
	rec := do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, Options{AllowedOrigin: "http://localhost:8501"}, false)
	rec := do(s, http.MethodOptions, "/api/screen/AAPL", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:8501", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestScreen(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)

	rec := do(s, http.MethodGet, "/api/screen/aapl", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "AAPL", body["ticker"])
	assert.EqualValues(t, 1, body["count"])

	rec = do(s, http.MethodGet, "/api/screen/AAPL?variation=0&variation=-0.05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])
}

func TestScreenRejectsBadParameters(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)

	for _, target := range []string{
		"/api/screen/AAPL?min_days=abc",
		"/api/screen/AAPL?min_days=300",
		"/api/screen/AAPL?variation=x",
	} {
		rec := do(s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "invalid parameters", decode(t, rec)["error"])
	}
}

func TestScreenProviderFailure(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)
	rec := do(s, http.MethodGet, "/api/screen/MSFT", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["details"])
}

func TestBest(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)

	rec := do(s, http.MethodGet, "/api/screen/AAPL/best", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var best models.StrategyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &best))
	assert.Equal(t, 100.0, best.CallQuote.Strike)
	assert.Equal(t, 90.0, best.PutQuote.Strike)

	rec = do(s, http.MethodGet, "/api/screen/AAPL/best?max_days=100", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrice(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)

	rec := do(s, http.MethodGet, "/api/price?spot=100&strike=100&days=365&rate=0.05&vol=0.2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 10.4506, body["call"], 1e-3)
	assert.InDelta(t, 5.5735, body["put"], 1e-3)
	assert.EqualValues(t, 0, body["intrinsic_call"])

	for _, target := range []string{
		"/api/price?strike=100&days=30&vol=0.2",
		"/api/price?spot=100&strike=100&days=30&vol=0",
		"/api/price?spot=100&strike=100&days=soon&vol=0.2",
	} {
		assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, target, "").Code, target)
	}
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t, Options{}, true)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/runs/latest", "").Code)

	rec := do(s, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "AAPL [Automatic]", created["label"])

	rec = do(s, http.MethodGet, "/api/runs/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created["id"], decode(t, rec)["id"])
}

func TestTriggerRunWithBody(t *testing.T) {
	s, _ := newTestServer(t, Options{}, true)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"tickers":["aapl"],"mode":"manual"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "AAPL [Manual]", decode(t, rec)["label"])

	req = httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"mode":"sideways"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsWithoutRunner(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/api/runs/latest", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodPost, "/api/runs", "").Code)
}

func signed(t *testing.T, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "dashboard",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestJWTMiddleware(t *testing.T) {
	s, _ := newTestServer(t, Options{JWTSecret: "s3cret"}, false)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/screen/AAPL", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/screen/AAPL", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/screen/AAPL", signed(t, jwt.SigningMethodHS256, "other")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/screen/AAPL", signed(t, jwt.SigningMethodHS512, "s3cret")).Code)

	valid := signed(t, jwt.SigningMethodHS256, "s3cret")
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/screen/AAPL", valid).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/screen/AAPL?token="+valid, "").Code)
}

func TestRunFeed(t *testing.T) {
	s, runner := newTestServer(t, Options{}, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/runs", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler subscribes right after the handshake, so keep triggering
	// runs until one is delivered.
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			runner.RunOnce(ctx, screener.ModeAutomatic, 1)
			time.Sleep(20 * time.Millisecond)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var run screener.Run
	require.NoError(t, conn.ReadJSON(&run))
	assert.Equal(t, "AAPL [Automatic]", run.Label)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "AAPL", run.Results[0].Ticker)
}

func TestServeStopsOnShutdown(t *testing.T) {
	s, _ := newTestServer(t, Options{}, false)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener is closed")
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServer(t, Options{Port: "0"}, false)
	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept listening after Shutdown")
	}
}
