package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/apperr"
	"github.com/goautomatik/router-server/internal/ratelimit"
)

// errorBody é o envelope de erro da API; sempre carrega o correlation id
// da request para casar com a trilha de log.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id"`
}

// writeJSON serializa o payload com o status dado
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError mapeia a taxonomia de erros para a resposta HTTP.
// Erros operacionais retornam mensagem limpa; não-operacionais são logados
// com detalhe completo e mascarados em produção.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	requestID := middleware.GetReqID(r.Context())

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.String("code", appErr.Code),
	)

	body := errorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID,
	}

	if appErr.Operational {
		logger.Info("request failed", zap.Error(appErr))
	} else {
		logger.Error("unexpected error", zap.Error(appErr))
		if !s.cfg.IsProduction() {
			body.Detail = appErr.Error()
		}
	}

	writeJSON(w, appErr.Status, body)
}

// rejectRateLimited responde o estouro de cota pelo mesmo envelope de erro
// dos handlers, preservando o correlation id; o Retry-After já vem anotado
// pelo middleware de throttle.
func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, _ ratelimit.Result) {
	s.writeError(w, r, apperr.TooManyRequests("too many requests"))
}
