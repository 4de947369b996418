package middleware

import (
	"net/http"
	"time"

	"tradingbot/pkg/utils"
)

// logging.go - логирование HTTP запросов
//
// Назначение:
// Логирует каждый входящий запрос операционного API: метод, путь,
// статус ответа, длительность обработки и адрес клиента.

// responseWriter перехватывает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging возвращает middleware логирования запросов
func Logging(log *utils.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("api")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			log.Info("http запрос",
				utils.String("method", r.Method),
				utils.String("path", r.URL.Path),
				utils.Int("status", wrapped.statusCode),
				utils.Int64("bytes", wrapped.written),
				utils.String("remote", r.RemoteAddr),
				utils.String("duration", time.Since(start).String()),
			)
		})
	}
}
