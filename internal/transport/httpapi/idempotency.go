package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	idempotencyKeyHeader   = "Idempotency-Key"
	idempotencyReplayed    = "Idempotent-Replayed"
	idempotencyKeyPrefix   = "http:"
	defaultIdempotencyTTL  = 24 * time.Hour
	maxIdempotencyKeyBytes = 200
	// Запись в processing старше этого срока осталась от прерванного запроса.
	staleProcessingAfter = 2 * time.Minute
)

// recordingWriter дублирует тело ответа, чтобы сохранить его под ключом.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для запроса с уже виденным Idempotency-Key.
// Запросы без заголовка проходят как есть. 2xx сохраняются как done, 4xx как failed,
// 5xx освобождают ключ для повторной попытки.
func idempotent(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
		if repo == nil || rawKey == "" {
			c.Next()
			return
		}
		if len(rawKey) > maxIdempotencyKeyBytes {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				errorBody(string(domain.KindValidation), "idempotency key is too long"))
			return
		}
		key := idempotencyKeyPrefix + rawKey

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				errorBody(string(domain.KindValidation), "failed to read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		entry := logger.WithField("idempotency_key", rawKey)
		hash := requestHash(c.Request.Method, c.Request.URL.Path, body)
		now := time.Now().UTC()
		record, err := repo.CreateProcessing(key, hash, now.Add(ttl))
		if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Abandoned(now, staleProcessingAfter) {
			entry.WithField("claimed_at", record.CreatedAt).Warn("reclaiming stale idempotency key")
			if err = repo.Delete(key); err == nil {
				record, err = repo.CreateProcessing(key, hash, now.Add(ttl))
			}
		}
		if err != nil {
			replay(c, entry, record, err)
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		switch {
		case status >= http.StatusInternalServerError:
			err = repo.Delete(key)
		case status >= http.StatusBadRequest:
			err = repo.MarkFailed(key, rec.body.Bytes(), status)
		default:
			err = repo.MarkDone(key, rec.body.Bytes(), status)
		}
		if err != nil {
			entry.WithError(err).Warn("failed to store idempotent response")
		}
	}
}

func replay(c *gin.Context, entry *log.Entry, record domain.IdempotencyRecord, err error) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusConflict,
			errorBody(string(domain.KindConflict), "idempotency key is already used with a different request"))
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Status.Finished() {
			c.AbortWithStatusJSON(http.StatusConflict,
				errorBody(string(domain.KindConflict), "request with the same idempotency key is in progress"))
			return
		}
		c.Header(idempotencyReplayed, "true")
		c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
		c.Abort()
	default:
		entry.WithError(err).Error("idempotency store unavailable")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(kindInternal, "internal error"))
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
