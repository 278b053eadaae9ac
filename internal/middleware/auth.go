package middleware

import (
	"net/http"
	"strings"

	"contract-service/pkg/jwtutil"
	"contract-service/pkg/logger"
	"contract-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware verifies the JWT token and extracts claims
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Track authentication attempts
		prometheus.AuthAttemptsCounter.Inc()

		// Extract the token from the Authorization header
		tokenString := c.Request().Header.Get("Authorization")
		if tokenString == "" {
			log.Warn("Missing authorization token")
			prometheus.AuthErrorsCounter.Inc()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && strings.ToUpper(tokenString[0:7]) == "BEARER " {
			tokenString = tokenString[7:]
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(tokenString)
		if err != nil {
			log.Warn("Invalid token", zap.Error(err))
			prometheus.AuthErrorsCounter.Inc()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		// Increment successful auth counter
		prometheus.AuthSuccessCounter.Inc()

		// Store user information in the context
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)

		// If token has company context, store it in the context
		if claims.CompanyID != nil {
			c.Set("company_id", *claims.CompanyID)
			c.Set("company_name", claims.CompanyName)
			c.Set("role", claims.Role)

			// Add company info to logger
			log = log.With(
				zap.Uint("company_id", *claims.CompanyID),
				zap.String("company_name", claims.CompanyName),
				zap.String("role", claims.Role),
			)
		}

		// Update logger with user information
		log = log.With(
			zap.Uint("user_id", claims.UserID),
			zap.String("email", claims.Email),
		)
		c.Set("logger", log)

		// Call the next handler
		return next(c)
	}
}

// RequireCompanyContext ensures the request has company context in the JWT
func RequireCompanyContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Check if company_id exists in context
		companyID, ok := c.Get("company_id").(uint)
		if !ok || companyID == 0 {
			log.Warn("Missing company context")
			prometheus.CompanyContextMissingCounter.Inc()
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":   "company context required",
				"message": "Please select a company before accessing this resource",
			})
		}

		// Company context exists, proceed
		return next(c)
	}
}
