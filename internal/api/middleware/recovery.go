package middleware

import (
	"net/http"
	"runtime/debug"

	"tradingbot/pkg/utils"
)

// recovery.go - восстановление после паники в handlers
//
// Назначение:
// Перехватывает panic в любом handler, логирует stack trace и
// возвращает клиенту 500, не роняя весь сервер.

// Recovery возвращает middleware перехвата паник
func Recovery(log *utils.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("api")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("паника в http handler",
						utils.String("path", r.URL.Path),
						utils.String("panic", toString(err)),
						utils.String("stack", string(debug.Stack())),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
