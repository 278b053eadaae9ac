package handler

import (
	"errors"
	"net/http"

	"contract-service/internal/engine"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// eng is the shared engine instance, wired in main.
var eng *engine.Engine

// Init sets the engine used by all handlers.
func Init(e *engine.Engine) {
	eng = e
}

// actorFromContext builds the engine actor from the authenticated request.
func actorFromContext(c echo.Context) (engine.Actor, bool) {
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return engine.Actor{}, false
	}
	companyID, ok := c.Get("company_id").(uint)
	if !ok {
		return engine.Actor{}, false
	}
	return engine.Actor{UserID: userID, CompanyID: companyID}, true
}

// engineError translates a typed engine error into a JSON response.
func engineError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrAlreadySigned),
		errors.Is(err, engine.ErrApprovalRejected):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrRateLimited),
		errors.Is(err, engine.ErrTooManyAttempts):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrCodeExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrCodeMismatch),
		errors.Is(err, engine.ErrNoSignableParty):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrDeliveryFailed):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	default:
		log.Error("Unexpected engine error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
