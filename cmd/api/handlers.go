package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rms-platform/pipeline-service/pkg/kafka"
	"github.com/rms-platform/pipeline-service/pkg/middleware"
	"github.com/rms-platform/pipeline-service/pkg/mongodb"

	"github.com/rms-platform/pipeline-service/internal/application"
	"github.com/rms-platform/pipeline-service/internal/domain"
)

const serviceName = "pipeline-service"

// Config holds application configuration
type Config struct {
	ServerAddr string
	MongoDB    *mongodb.Config
	Kafka      *kafka.Config
}

func loadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8010"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "rms_pipeline"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadRoleProfiles parses the ROLE_PROFILES override, a JSON object mapping
// role names to item type and entry stage, e.g.
// {"Disassemble":{"itemType":"SERVICE","initialStage":"Disassemble"}}.
// An empty value keeps the built-in mapping.
func loadRoleProfiles() (map[string]domain.RoleProfile, error) {
	raw := os.Getenv("ROLE_PROFILES")
	if raw == "" {
		return nil, nil
	}

	var parsed map[string]struct {
		ItemType     string `json:"itemType"`
		InitialStage string `json:"initialStage"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid ROLE_PROFILES: %w", err)
	}

	profiles := make(map[string]domain.RoleProfile, len(parsed))
	for role, p := range parsed {
		itemType := domain.ItemType(p.ItemType)
		if itemType != domain.ItemTypeNew && itemType != domain.ItemTypeService {
			return nil, fmt.Errorf("invalid ROLE_PROFILES: role %q has unknown item type %q", role, p.ItemType)
		}
		if p.InitialStage == "" {
			return nil, fmt.Errorf("invalid ROLE_PROFILES: role %q has no initial stage", role)
		}
		profiles[role] = domain.RoleProfile{ItemType: itemType, InitialStage: p.InitialStage}
	}
	return profiles, nil
}

func createProcessHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Role         string `json:"role" binding:"required"`
			ProductName  string `json:"productName" binding:"required,safe_string"`
			ItemName     string `json:"itemName" binding:"required,safe_string"`
			SubItemName  string `json:"subItemName" binding:"required,safe_string"`
			SerialNumber string `json:"serialNumber" binding:"required,serial_number"`
			Quantity     int    `json:"quantity" binding:"required,gte=1"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.CreateProcessCommand{
			Role:         req.Role,
			ProductName:  req.ProductName,
			ItemName:     req.ItemName,
			SubItemName:  req.SubItemName,
			SerialNumber: req.SerialNumber,
			Quantity:     req.Quantity,
		}

		process, err := service.CreateProcess(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, process)
	}
}

func getProcessHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := application.GetProcessQuery{ProcessID: c.Param("processId")}

		process, err := service.GetProcess(c.Request.Context(), query)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, process)
	}
}

func listProcessesHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		query := application.ListProcessesQuery{
			Status: c.Query("status"),
			Limit:  limit,
			Offset: offset,
		}

		processes, err := service.ListProcesses(c.Request.Context(), query)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, processes)
	}
}

func acceptActivityHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EmployeeID string `json:"employeeId" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.AcceptActivityCommand{
			ProcessID:  c.Param("processId"),
			EmployeeID: req.EmployeeID,
		}

		process, err := service.AcceptActivity(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, process)
	}
}

func startActivityHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EmployeeID string `json:"employeeId" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.StartActivityCommand{
			ProcessID:  c.Param("processId"),
			EmployeeID: req.EmployeeID,
		}

		process, err := service.StartActivity(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, process)
	}
}

func completeActivityHandler(service *application.ProcessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EmployeeID    string `json:"employeeId" binding:"required"`
			Outcome       string `json:"outcome" binding:"required,stage_outcome"`
			FailureReason string `json:"failureReason" binding:"omitempty,safe_string"`
			Remarks       string `json:"remarks" binding:"omitempty,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.CompleteActivityCommand{
			ProcessID:     c.Param("processId"),
			EmployeeID:    req.EmployeeID,
			Outcome:       domain.ActivityStatus(req.Outcome),
			FailureReason: req.FailureReason,
			Remarks:       req.Remarks,
		}

		process, err := service.CompleteActivity(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, process)
	}
}

func submitDisassemblyHandler(service *application.DisassembleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SessionID           string `json:"sessionId" binding:"required"`
			EmployeeID          string `json:"employeeId" binding:"required"`
			ReceivingEmployeeID string `json:"receivingEmployeeId" binding:"required"`
			Items               []struct {
				MaterialID string `json:"materialId" binding:"required"`
				Quantity   int    `json:"quantity" binding:"required,gte=1"`
			} `json:"items" binding:"required,min=1,dive"`
			Remarks string `json:"remarks" binding:"omitempty,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		items := make([]domain.RecoveredItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, domain.RecoveredItem{
				MaterialID: item.MaterialID,
				Quantity:   item.Quantity,
			})
		}

		cmd := application.SubmitDisassemblyCommand{
			ProcessID:           c.Param("processId"),
			SessionID:           req.SessionID,
			EmployeeID:          req.EmployeeID,
			ReceivingEmployeeID: req.ReceivingEmployeeID,
			Items:               items,
			Remarks:             req.Remarks,
		}

		process, err := service.SubmitRecovery(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, process)
	}
}

func requestMaterialsHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EmployeeID    string `json:"employeeId" binding:"required"`
			StoreKeeperID string `json:"storeKeeperId" binding:"required"`
			Lines         []struct {
				MaterialID string `json:"materialId" binding:"required"`
				Quantity   int    `json:"quantity" binding:"required,gte=1"`
			} `json:"lines" binding:"required,min=1,dive"`
			IsProcessRequest bool   `json:"isProcessRequest"`
			ProcessID        string `json:"processId" binding:"omitempty"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		lines := make([]domain.RequestLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, domain.RequestLine{
				MaterialID: line.MaterialID,
				Quantity:   line.Quantity,
			})
		}

		cmd := application.RequestMaterialsCommand{
			EmployeeID:       req.EmployeeID,
			StoreKeeperID:    req.StoreKeeperID,
			Lines:            lines,
			IsProcessRequest: req.IsProcessRequest,
			ProcessID:        req.ProcessID,
		}

		request, err := service.RequestMaterials(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, request)
	}
}

func decideRequestHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DecidedBy string `json:"decidedBy" binding:"required"`
			Decision  string `json:"decision" binding:"required,request_decision"`
			Remarks   string `json:"remarks" binding:"omitempty,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.DecideRequestCommand{
			RequestID: c.Param("requestId"),
			DecidedBy: req.DecidedBy,
			Decision:  domain.RequestDecision(req.Decision),
			Remarks:   req.Remarks,
		}

		request, err := service.DecideRequest(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, request)
	}
}

func sanctionRequestHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd := application.SanctionRequestCommand{RequestID: c.Param("requestId")}

		request, err := service.SanctionRequest(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, request)
	}
}

func getRequestHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := application.GetRequestQuery{RequestID: c.Param("requestId")}

		request, err := service.GetRequest(c.Request.Context(), query)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, request)
	}
}

func listPendingRequestsHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		requests, err := service.ListPendingRequests(c.Request.Context())
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, requests)
	}
}

func consumeMaterialHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EmployeeID string `json:"employeeId" binding:"required"`
			ProcessID  string `json:"processId" binding:"omitempty"`
			Materials  []struct {
				MaterialID string `json:"materialId" binding:"required"`
				Quantity   int    `json:"quantity" binding:"required,gte=1"`
			} `json:"materials" binding:"required,min=1,dive"`
			Remarks string `json:"remarks" binding:"omitempty,safe_string"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		lines := make([]domain.RequestLine, 0, len(req.Materials))
		for _, line := range req.Materials {
			lines = append(lines, domain.RequestLine{
				MaterialID: line.MaterialID,
				Quantity:   line.Quantity,
			})
		}

		cmd := application.ConsumeMaterialCommand{
			EmployeeID: req.EmployeeID,
			ProcessID:  req.ProcessID,
			Lines:      lines,
			Remarks:    req.Remarks,
		}

		if err := service.ConsumeMaterial(c.Request.Context(), cmd); err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "consumed"})
	}
}

func listMaterialsHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		materials, err := service.ListMaterials(c.Request.Context())
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, materials)
	}
}

func getMaterialHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		material, err := service.GetMaterial(c.Request.Context(), c.Param("materialId"))
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, material)
	}
}

func getEmployeeStockHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := application.GetEmployeeStockQuery{EmployeeID: c.Param("employeeId")}

		stocks, err := service.GetEmployeeStock(c.Request.Context(), query)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, stocks)
	}
}

func getWarehouseStockHandler(service *application.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := application.GetWarehouseStockQuery{ProductName: c.Param("productName")}

		stocks, err := service.GetWarehouseStock(c.Request.Context(), query)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, stocks)
	}
}
