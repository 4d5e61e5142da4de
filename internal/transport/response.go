package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool             `json:"success"`
	Kind    entity.ErrorKind `json:"kind"`
	Error   string           `json:"error"`
}

var kindStatus = map[entity.ErrorKind]int{
	entity.KindNotFound:            http.StatusNotFound,
	entity.KindNotAvailable:        http.StatusConflict,
	entity.KindCapacityExceeded:    http.StatusConflict,
	entity.KindDuplicateBooking:    http.StatusConflict,
	entity.KindConcurrencyConflict: http.StatusConflict,
	entity.KindInvalidTransition:   http.StatusConflict,
	entity.KindLedgerExhausted:     http.StatusUnprocessableEntity,
	entity.KindInvalidInput:        http.StatusBadRequest,
	entity.KindDeliveryFailure:     http.StatusBadGateway,
	entity.KindDeliveryExhausted:   http.StatusBadGateway,
	entity.KindTimeout:             http.StatusGatewayTimeout,
}

// respondError сопоставляет err с кодом ответа. Внутренние ошибки логируются и не отдаются клиенту
func respondError(c *gin.Context, err error) {
	kind := entity.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Kind:  entity.KindInternal,
			Error: "internal server error",
		})
		return
	}
	c.JSON(status, ErrorResponse{Kind: kind, Error: err.Error()})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Kind: entity.KindInvalidInput, Error: err.Error()})
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

const defaultWindow = 7 * 24 * time.Hour

// parseWindow читает ?from&to (RFC3339). По умолчанию from равен текущему времени, to на неделю позже from
func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	from := time.Now().UTC()
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, entity.InvalidInput("from must be RFC3339")
		}
		from = t
	}
	to := from.Add(defaultWindow)
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, entity.InvalidInput("to must be RFC3339")
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, entity.InvalidInput("to must not precede from")
	}
	return from, to, nil
}
