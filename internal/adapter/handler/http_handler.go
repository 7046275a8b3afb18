package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/core/service"
	"github.com/rl1809/stock-deduct/internal/port"
)

const (
	deductAck         = "hello stock deduct!!"
	outcomeHeader     = "X-Deduct-Outcome"
	healthCheckBudget = 2 * time.Second
)

type HTTPHandler struct {
	policy      service.DeductionPolicy
	productCode string
	pingers     map[string]port.Pinger
	logger      *zap.Logger
}

func NewHTTPHandler(policy service.DeductionPolicy, productCode string, pingers map[string]port.Pinger, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{policy: policy, productCode: productCode, pingers: pingers, logger: logger}
}

// Deduct takes one unit of the default product. Sold out is acknowledged the
// same way as a decrement; the outcome header tells them apart.
func (h *HTTPHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome, err := h.policy.DeductOne(r.Context(), h.productCode)
	w.Header().Set(outcomeHeader, string(outcome))
	if err != nil {
		http.Error(w, errorMessage(err), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(deductAck))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckBudget)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("store", name), zap.Error(err))
			status[name] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}

	writeJSON(w, code, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrContentionTimeout):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInterruptedWait):
		return http.StatusRequestTimeout
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store unavailable"
	case errors.Is(err, domain.ErrContentionTimeout):
		return "too much contention, try again"
	case errors.Is(err, domain.ErrInterruptedWait):
		return "request cancelled"
	case errors.Is(err, domain.ErrRecordNotFound):
		return "product not found"
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
