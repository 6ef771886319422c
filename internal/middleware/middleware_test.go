package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotency_StoresFirstResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock := redismock.NewClientMock()
	router := gin.New()
	router.Use(Idempotency(db, discardLogger()))
	calls := 0
	router.POST("/v1/things", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": "t1"})
	})

	key := "idempotency:POST:/v1/things:k1"
	mock.ExpectGet(key).RedisNil()
	mock.Regexp().ExpectSet(key, `.*`, idempotencyTTL).SetVal("OK")

	req := httptest.NewRequest(http.MethodPost, "/v1/things", nil)
	req.Header.Set(IdempotencyHeader, "k1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get(ReplayHeader))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock := redismock.NewClientMock()
	router := gin.New()
	router.Use(Idempotency(db, discardLogger()))
	calls := 0
	router.POST("/v1/things", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": "t2"})
	})

	stored, err := json.Marshal(cachedResponse{
		StatusCode: http.StatusCreated,
		Body:       json.RawMessage(`{"id":"t1"}`),
	})
	require.NoError(t, err)
	mock.ExpectGet("idempotency:POST:/v1/things:k1").SetVal(string(stored))

	req := httptest.NewRequest(http.MethodPost, "/v1/things", nil)
	req.Header.Set(IdempotencyHeader, "k1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"t1"}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(ReplayHeader))
	assert.Equal(t, 0, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_SkipsServerErrorsAndReads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock := redismock.NewClientMock()
	router := gin.New()
	router.Use(Idempotency(db, discardLogger()))
	router.POST("/v1/fail", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "down"})
	})
	router.GET("/v1/things", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	mock.ExpectGet("idempotency:POST:/v1/fail:k1").RedisNil()

	req := httptest.NewRequest(http.MethodPost, "/v1/fail", nil)
	req.Header.Set(IdempotencyHeader, "k1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.Header.Set(IdempotencyHeader, "k1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(NewRateLimiter(1, 2, time.Minute)))
	router.POST("/v1/things", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/v1/things", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/things", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/things", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	now = now.Add(2 * time.Minute)
	rl.evict()
	assert.Empty(t, rl.visitors)
}

func TestMetricsAndTransactionAttributes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(), TransactionAttributes())
	router.GET("/v1/bookings/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/bookings/b1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
