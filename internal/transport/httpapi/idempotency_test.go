package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

func idempotentEngine(repo domain.IdempotencyRepository, status *int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/op", idempotent(repo, time.Hour, log.NewEntry(log.New())), func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return r
}

// agedClaims состаривает занятые ключи, как будто их владелец давно пропал.
type agedClaims struct {
	domain.IdempotencyRepository
	age time.Duration
}

func (a agedClaims) CreateProcessing(key, hash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := a.IdempotencyRepository.CreateProcessing(key, hash, ttlAt)
	if err != nil {
		record.CreatedAt = record.CreatedAt.Add(-a.age)
	}
	return record, err
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/op", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIdempotent(t *testing.T) {
	t.Run("without key every request runs", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		r := idempotentEngine(memory.NewIdempotencyRepository(), &status, &calls)
		post(r, "", "{}")
		post(r, "", "{}")
		require.Equal(t, 2, calls)
	})

	t.Run("client error is replayed", func(t *testing.T) {
		status, calls := http.StatusConflict, 0
		r := idempotentEngine(memory.NewIdempotencyRepository(), &status, &calls)
		first := post(r, "k", "{}")
		second := post(r, "k", "{}")
		require.Equal(t, 1, calls)
		require.Equal(t, http.StatusConflict, second.Code)
		require.Equal(t, first.Body.String(), second.Body.String())
	})

	t.Run("server error releases the key", func(t *testing.T) {
		status, calls := http.StatusInternalServerError, 0
		repo := memory.NewIdempotencyRepository()
		r := idempotentEngine(repo, &status, &calls)
		post(r, "k", "{}")
		_, err := repo.Get(idempotencyKeyPrefix + "k")
		require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

		status = http.StatusOK
		rec := post(r, "k", "{}")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 2, calls)
	})

	t.Run("in-flight key conflicts", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		repo := memory.NewIdempotencyRepository()
		_, err := repo.CreateProcessing(idempotencyKeyPrefix+"k", requestHash(http.MethodPost, "/op", []byte("{}")), time.Now().Add(time.Hour))
		require.NoError(t, err)

		rec := post(idempotentEngine(repo, &status, &calls), "k", "{}")
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Zero(t, calls)
	})

	t.Run("abandoned in-flight key is reclaimed", func(t *testing.T) {
		status, calls := http.StatusCreated, 0
		repo := memory.NewIdempotencyRepository()
		_, err := repo.CreateProcessing(idempotencyKeyPrefix+"k", requestHash(http.MethodPost, "/op", []byte("{}")), time.Now().Add(time.Hour))
		require.NoError(t, err)

		r := idempotentEngine(agedClaims{IdempotencyRepository: repo, age: staleProcessingAfter + time.Minute}, &status, &calls)
		rec := post(r, "k", "{}")
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, 1, calls)

		record, err := repo.Get(idempotencyKeyPrefix + "k")
		require.NoError(t, err)
		require.Equal(t, domain.IdempotencyStatusDone, record.Status)

		replayed := post(r, "k", "{}")
		require.Equal(t, http.StatusCreated, replayed.Code)
		require.Equal(t, "true", replayed.Header().Get(idempotencyReplayed))
		require.Equal(t, 1, calls)
	})

	t.Run("key too long", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		r := idempotentEngine(memory.NewIdempotencyRepository(), &status, &calls)
		rec := post(r, strings.Repeat("x", maxIdempotencyKeyBytes+1), "{}")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequestHash_DependsOnPathAndBody(t *testing.T) {
	base := requestHash(http.MethodPost, "/orders", []byte(`{"a":1}`))
	require.Equal(t, base, requestHash(http.MethodPost, "/orders", []byte(`{"a":1}`)))
	require.NotEqual(t, base, requestHash(http.MethodPost, "/orders/x/confirm", []byte(`{"a":1}`)))
	require.NotEqual(t, base, requestHash(http.MethodPost, "/orders", []byte(`{"a":2}`)))
}
