package handler

import (
	"net/http"
	"strconv"
	"time"

	"contract-service/internal/engine"
	"contract-service/internal/model"
	"contract-service/pkg/database"
	"contract-service/pkg/logger"
	"contract-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ContractRequest defines the structure for contract creation/update requests
type ContractRequest struct {
	ContractTypeID uint       `json:"contract_type_id"`
	Title          string     `json:"title" validate:"required"`
	Content        string     `json:"content"`
	SigningMethod  string     `json:"signing_method"`
	Value          float64    `json:"value"`
	Currency       string     `json:"currency"`
	OwnerEmail     string     `json:"owner_email"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
}

// PartyRequest defines the structure for adding a contract party
type PartyRequest struct {
	Type       string `json:"type"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	IsRequired *bool  `json:"is_required"`
}

// CreateContract creates a new contract in draft for the current company
func CreateContract(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("create")

	var req ContractRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request data",
		})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "title is required",
		})
	}

	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	contract, err := eng.CreateContract(actor, engine.CreateContractInput{
		ContractTypeID: req.ContractTypeID,
		Title:          req.Title,
		Content:        req.Content,
		SigningMethod:  model.SigningMethod(req.SigningMethod),
		Value:          req.Value,
		Currency:       req.Currency,
		OwnerEmail:     req.OwnerEmail,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	})
	if err != nil {
		log.Error("Failed to create contract", zap.String("title", req.Title), zap.Error(err))
		return engineError(c, log, err)
	}

	log.Info("Contract created successfully",
		zap.Uint("contract_id", contract.ID),
		zap.String("contract_number", contract.ContractNumber))
	return c.JSON(http.StatusCreated, contract)
}

// GetContract retrieves a contract with its parties, signatures and approvals
func GetContract(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("get")

	id, companyID, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var contract model.Contract
	result := database.GetDB().
		Preload("Parties").
		Preload("Signatures").
		Preload("Approvals").
		Where("id = ? AND company_id = ?", id, companyID).
		First(&contract)
	if result.Error != nil {
		log.Warn("Contract not found or does not belong to company",
			zap.Uint64("contract_id", id),
			zap.Uint("company_id", companyID))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Contract not found"})
	}

	return c.JSON(http.StatusOK, contract)
}

// ListContracts retrieves contracts for the current company with pagination
func ListContracts(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("list")

	companyID, ok := c.Get("company_id").(uint)
	if !ok {
		prometheus.CompanyContextMissingCounter.Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_id is required"})
	}

	// Parse query parameters for pagination
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	offset := (page - 1) * limit

	query := database.GetDB().Where("company_id = ?", companyID)

	// Filter by status if specified
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var contracts []model.Contract
	result := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&contracts)
	if result.Error != nil {
		log.Error("Failed to retrieve contracts",
			zap.Uint("company_id", companyID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to retrieve contracts",
		})
	}

	var total int64
	query.Model(&model.Contract{}).Count(&total)

	return c.JSON(http.StatusOK, echo.Map{
		"contracts": contracts,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// UpdateContract edits a draft in place or appends an amendment afterwards
func UpdateContract(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("update")

	id, _, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req ContractRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var value *float64
	if req.Value != 0 {
		value = &req.Value
	}
	contract, err := eng.UpdateContract(actor, uint(id), engine.UpdateContractInput{
		Title:   req.Title,
		Content: req.Content,
		Value:   value,
		EndDate: req.EndDate,
	})
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Contract updated", zap.Uint("contract_id", contract.ID))
	return c.JSON(http.StatusOK, contract)
}

// DeleteContract soft-deletes a contract, preserving the audit trail
func DeleteContract(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("delete")

	id, companyID, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}

	var contract model.Contract
	result := database.GetDB().Where("id = ? AND company_id = ?", id, companyID).First(&contract)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Contract not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := database.GetDB().Delete(&contract).Error; err != nil {
		log.Error("Failed to delete contract",
			zap.Uint64("contract_id", id),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete contract"})
	}

	log.Info("Contract deleted", zap.Uint64("contract_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Contract deleted successfully"})
}

// AddParty attaches a signing party to a contract
func AddParty(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("add_party")

	id, _, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req PartyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	party, err := eng.AddParty(actor, uint(id), engine.PartyInput{
		Type:       model.PartyType(req.Type),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		IsRequired: req.IsRequired,
	})
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Party added",
		zap.Uint64("contract_id", id),
		zap.Uint("party_id", party.ID))
	return c.JSON(http.StatusCreated, party)
}

// SendContract moves a draft to pending and opens the signing sessions
func SendContract(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("send")

	id, _, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	contract, err := eng.SendForSigning(actor, uint(id))
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Contract sent for signing", zap.Uint("contract_id", contract.ID))
	return c.JSON(http.StatusOK, contract)
}

// TerminateContract moves any non-terminal contract to terminated
func TerminateContract(c echo.Context) error {
	return closeContract(c, "terminate")
}

// CancelContract moves any non-terminal contract to cancelled
func CancelContract(c echo.Context) error {
	return closeContract(c, "cancel")
}

func closeContract(c echo.Context, op string) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation(op)

	id, _, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)

	var (
		contract *model.Contract
		err      error
	)
	if op == "terminate" {
		contract, err = eng.Terminate(actor, uint(id), req.Reason)
	} else {
		contract, err = eng.Cancel(actor, uint(id), req.Reason)
	}
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Contract closed",
		zap.Uint("contract_id", contract.ID),
		zap.String("status", string(contract.Status)))
	return c.JSON(http.StatusOK, contract)
}

// GetContractHistory returns the transition log and amendments for audit
func GetContractHistory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("history")

	id, companyID, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}

	var contract model.Contract
	if err := database.GetDB().Where("id = ? AND company_id = ?", id, companyID).First(&contract).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Contract not found"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var transitions []model.ContractTransition
	if err := database.GetDB().Where("contract_id = ?", id).
		Order("created_at asc").Find(&transitions).Error; err != nil {
		log.Error("Failed to load transitions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load history"})
	}

	var amendments []model.ContractAmendment
	if err := database.GetDB().Where("contract_id = ?", id).
		Order("version asc").Find(&amendments).Error; err != nil {
		log.Error("Failed to load amendments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load history"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"contract_id": contract.ID,
		"transitions": transitions,
		"amendments":  amendments,
	})
}

// contractScope parses the path ID and pulls the company from the JWT context.
func contractScope(c echo.Context) (uint64, uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	companyID, ok := c.Get("company_id").(uint)
	if !ok {
		prometheus.CompanyContextMissingCounter.Inc()
		return 0, 0, false
	}
	return id, companyID, true
}
