package handler

import (
	"net/http"
	"strconv"

	"contract-service/internal/engine"
	"contract-service/pkg/logger"
	"contract-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestCode issues a fresh verification code to a party
func RequestCode(c echo.Context) error {
	log := logger.FromContext(c)

	contractID, partyID, ok := signingScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract or party ID"})
	}

	if err := eng.RequestCode(contractID, partyID); err != nil {
		prometheus.RecordSigningEvent("code_request_failed")
		log.Warn("Code request failed",
			zap.Uint("contract_id", contractID),
			zap.Uint("party_id", partyID),
			zap.Error(err))
		return engineError(c, log, err)
	}

	prometheus.RecordSigningEvent("code_sent")
	return c.JSON(http.StatusOK, echo.Map{"message": "Verification code sent"})
}

// VerifyCode checks a submitted code and records the signature on success
func VerifyCode(c echo.Context) error {
	log := logger.FromContext(c)

	contractID, partyID, ok := signingScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract or party ID"})
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}

	evidence := engine.SignatureEvidence{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if err := eng.VerifyCode(contractID, partyID, req.Code, evidence); err != nil {
		prometheus.RecordSigningEvent("verify_failed")
		log.Warn("Code verification failed",
			zap.Uint("contract_id", contractID),
			zap.Uint("party_id", partyID),
			zap.Error(err))
		return engineError(c, log, err)
	}

	prometheus.RecordSigningEvent("verified")
	log.Info("Signature verified",
		zap.Uint("contract_id", contractID),
		zap.Uint("party_id", partyID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Signature recorded"})
}

// RecordHandwritten records an uploaded handwritten signature reference
func RecordHandwritten(c echo.Context) error {
	return recordEvidence(c, "handwritten")
}

// RecordDigital records a digital certificate signature reference
func RecordDigital(c echo.Context) error {
	return recordEvidence(c, "digital")
}

func recordEvidence(c echo.Context, method string) error {
	log := logger.FromContext(c)

	contractID, partyID, ok := signingScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract or party ID"})
	}

	var req struct {
		EvidenceRef string `json:"evidence_ref"`
	}
	if err := c.Bind(&req); err != nil || req.EvidenceRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "evidence_ref is required"})
	}

	evidence := engine.SignatureEvidence{
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		EvidenceRef: req.EvidenceRef,
	}

	var err error
	if method == "handwritten" {
		err = eng.RecordHandwritten(contractID, partyID, evidence)
	} else {
		err = eng.RecordDigital(contractID, partyID, evidence)
	}
	if err != nil {
		prometheus.RecordSigningEvent("verify_failed")
		return engineError(c, log, err)
	}

	prometheus.RecordSigningEvent("verified")
	log.Info("Signature evidence recorded",
		zap.Uint("contract_id", contractID),
		zap.Uint("party_id", partyID),
		zap.String("method", method))
	return c.JSON(http.StatusOK, echo.Map{"message": "Signature recorded"})
}

func signingScope(c echo.Context) (uint, uint, bool) {
	contractID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	partyID, err := strconv.ParseUint(c.Param("partyID"), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint(contractID), uint(partyID), true
}
