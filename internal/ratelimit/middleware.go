package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// apiKeyHeader identifica o chamador quando presente; senão usa o endereço
const apiKeyHeader = "X-Api-Key"

// Identity deriva a identidade de throttle da request
func Identity(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware aplica o limiter a todas as requests, anotando cota restante
// e momento de reset nos headers. A rejeição em si é delegada ao servidor
// via reject, que escreve a resposta 429; o middleware só garante o
// Retry-After e a contagem.
func (l *Limiter) Middleware(rejections prometheus.Counter, reject func(w http.ResponseWriter, r *http.Request, result Result)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := l.Allow(Identity(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				if rejections != nil {
					rejections.Inc()
				}
				retryAfter := int(result.RetryAfter.Seconds() + 0.5)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				reject(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
