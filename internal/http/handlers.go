package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/log"
	"gastos/internal/telegram"
)

const (
	maxWebhookBody = 1 << 20
	maxRequestBody = 4 << 10
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the record store and reports queue availability.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed",
				log.FieldBackend, "store",
				log.FieldError, err.Error())
			checks["store"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not_checked"
	}

	if s.publisher != nil {
		checks["queue"] = "configured"
	} else {
		checks["queue"] = "not_configured"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleWebhook always answers 200 once the secret check passed so Telegram
// does not redeliver the update. Failures are logged instead.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentBot)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Webhook body rejected", log.FieldError, err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	cmd, err := telegram.ParseUpdate(body)
	switch {
	case errors.Is(err, telegram.ErrIgnored):
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		logger.Warn("Webhook update could not be parsed",
			log.FieldOperation, log.OpParse,
			log.FieldError, err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.bot == nil {
		logger.Error("Webhook received but no bot handler is configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.bot.Handle(r.Context(), cmd); err != nil {
		logger.Error("Bot command failed",
			log.FieldCommand, cmd.Name,
			log.FieldChatID, cmd.ChatID,
			log.FieldError, err.Error())
	} else {
		logger.Info("Bot command handled",
			log.FieldCommand, cmd.Name,
			log.FieldChatID, cmd.ChatID)
	}
	w.WriteHeader(http.StatusOK)
}

type runReportBody struct {
	Period      string `json:"period"`
	Force       bool   `json:"force"`
	RequestedBy string `json:"requested_by"`
}

// handleRunReport queues a ReportRequest. An empty body asks for the
// previous month without forcing.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "report queue is not configured")
		return
	}

	var body runReportBody
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if body.RequestedBy == "" {
		body.RequestedBy = "http"
	}

	req := amqp.NewReportRequest(body.Period, body.Force, body.RequestedBy)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.publisher.PublishReportRequest(r.Context(), req); err != nil {
		logger.Error("Report request publish failed",
			log.FieldOperation, log.OpPublish,
			log.FieldPeriod, req.Period,
			log.FieldError, err.Error())
		if errors.Is(err, amqp.ErrCircuitOpen) {
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "report queue is unavailable")
			return
		}
		writeError(w, http.StatusBadGateway, "could not queue report request")
		return
	}

	logger.Info("Report request queued",
		log.FieldPeriod, req.Period,
		"force", req.Force,
		"requested_by", req.RequestedBy)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "queued",
		"period": req.Period,
		"force":  req.Force,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
