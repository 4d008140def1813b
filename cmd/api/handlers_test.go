package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"
	"github.com/rms-platform/pipeline-service/pkg/middleware"

	"github.com/rms-platform/pipeline-service/internal/application"
	"github.com/rms-platform/pipeline-service/internal/domain"
)

type fakeProcessRepo struct {
	SaveFn                  func(ctx context.Context, process *domain.ServiceProcess) error
	AcceptCurrentActivityFn func(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error)
	FindByProcessIDFn       func(ctx context.Context, processID string) (*domain.ServiceProcess, error)
}

func (f *fakeProcessRepo) Save(ctx context.Context, process *domain.ServiceProcess) error {
	if f.SaveFn != nil {
		return f.SaveFn(ctx, process)
	}
	return nil
}

func (f *fakeProcessRepo) SaveCompleted(ctx context.Context, process *domain.ServiceProcess) error {
	return nil
}

func (f *fakeProcessRepo) SaveWithRecovery(ctx context.Context, process *domain.ServiceProcess, recovery *domain.DisassembleRecovery) error {
	return nil
}

func (f *fakeProcessRepo) AcceptCurrentActivity(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error) {
	if f.AcceptCurrentActivityFn != nil {
		return f.AcceptCurrentActivityFn(ctx, processID, employeeID)
	}
	return nil, nil
}

func (f *fakeProcessRepo) StartCurrentActivity(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error) {
	return nil, nil
}

func (f *fakeProcessRepo) FindByProcessID(ctx context.Context, processID string) (*domain.ServiceProcess, error) {
	if f.FindByProcessIDFn != nil {
		return f.FindByProcessIDFn(ctx, processID)
	}
	return nil, nil
}

func (f *fakeProcessRepo) FindSameDayUnit(ctx context.Context, productName, itemName, subItemName, serialNumber, createdDate string) (*domain.ServiceProcess, error) {
	return nil, nil
}

func (f *fakeProcessRepo) FindAll(ctx context.Context, status domain.ProcessStatus, limit, offset int) ([]*domain.ServiceProcess, error) {
	return nil, nil
}

type fakeStageConfigRepo struct{}

func (f *fakeStageConfigRepo) FlowsFor(ctx context.Context, productName string, itemType domain.ItemType) ([]domain.StageFlow, error) {
	return nil, nil
}

func (f *fakeStageConfigRepo) RedirectFor(ctx context.Context, productName string, itemType domain.ItemType, reason string) (*domain.FailureRedirect, error) {
	return nil, nil
}

func (f *fakeStageConfigRepo) HasRedirects(ctx context.Context, productName string, itemType domain.ItemType) (bool, error) {
	return false, nil
}

type fakeRequestRepo struct{}

func (f *fakeRequestRepo) Save(ctx context.Context, request *domain.ItemRequest) error { return nil }
func (f *fakeRequestRepo) SaveDecision(ctx context.Context, request *domain.ItemRequest) error {
	return nil
}
func (f *fakeRequestRepo) Sanction(ctx context.Context, request *domain.ItemRequest) error {
	return nil
}
func (f *fakeRequestRepo) FindByRequestID(ctx context.Context, requestID string) (*domain.ItemRequest, error) {
	return nil, nil
}
func (f *fakeRequestRepo) FindPending(ctx context.Context) ([]*domain.ItemRequest, error) {
	return nil, nil
}

type fakeMaterialRepo struct{}

func (f *fakeMaterialRepo) FindByMaterialID(ctx context.Context, materialID string) (*domain.RawMaterial, error) {
	return nil, nil
}
func (f *fakeMaterialRepo) FindAll(ctx context.Context) ([]*domain.RawMaterial, error) {
	return nil, nil
}

type fakeUserStockRepo struct{}

func (f *fakeUserStockRepo) Find(ctx context.Context, employeeID, materialID string) (*domain.UserItemStock, error) {
	return nil, nil
}
func (f *fakeUserStockRepo) FindByEmployee(ctx context.Context, employeeID string) ([]*domain.UserItemStock, error) {
	return nil, nil
}
func (f *fakeUserStockRepo) Consume(ctx context.Context, usages []*domain.ItemUsage) error {
	return nil
}

type fakeEmployeeDirectory struct{}

func (f *fakeEmployeeDirectory) HasRole(ctx context.Context, employeeID, role string) (bool, error) {
	return true, nil
}

type fakeWarehouseRepo struct{}

func (f *fakeWarehouseRepo) Find(ctx context.Context, productName, itemName, subItemName string) (*domain.WarehouseStock, error) {
	return nil, nil
}
func (f *fakeWarehouseRepo) FindByProduct(ctx context.Context, productName string) ([]*domain.WarehouseStock, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, processRepo domain.ProcessRepository) (*gin.Engine, *application.ProcessService, *application.LedgerService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitValidator()

	m := metrics.New(metrics.DefaultConfig("test"))
	logger := logging.New(logging.DefaultConfig("test"))

	if processRepo == nil {
		processRepo = &fakeProcessRepo{}
	}

	processService := application.NewProcessService(processRepo, &fakeStageConfigRepo{}, nil, m, logger)
	ledgerService := application.NewLedgerService(&fakeRequestRepo{}, &fakeMaterialRepo{}, &fakeUserStockRepo{}, &fakeEmployeeDirectory{}, &fakeWarehouseRepo{}, m, logger)

	router := gin.New()
	return router, processService, ledgerService
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Code
}

func TestCreateProcessHandler(t *testing.T) {
	var saved *domain.ServiceProcess
	repo := &fakeProcessRepo{
		SaveFn: func(ctx context.Context, process *domain.ServiceProcess) error {
			saved = process
			return nil
		},
	}
	router, processService, _ := newTestRouter(t, repo)
	router.POST("/api/v1/processes", createProcessHandler(processService))

	w := doJSON(router, http.MethodPost, "/api/v1/processes",
		`{"role":"Disassemble","productName":"Starter Motor","itemName":"Armature","subItemName":"Shaft","serialNumber":"SN-1001","quantity":1}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if saved == nil {
		t.Fatal("expected process to be saved")
	}
	if saved.ItemType != domain.ItemTypeService {
		t.Fatalf("expected SERVICE item type, got %s", saved.ItemType)
	}

	var resp struct {
		ProcessID      string `json:"processId"`
		CurrentStageID string `json:"currentStageId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ProcessID == "" {
		t.Fatal("expected a generated process ID")
	}
	if resp.CurrentStageID != domain.StageDisassemble {
		t.Fatalf("expected initial stage %q, got %q", domain.StageDisassemble, resp.CurrentStageID)
	}
}

func TestCreateProcessHandler_RejectsInvalidBody(t *testing.T) {
	router, processService, _ := newTestRouter(t, nil)
	router.POST("/api/v1/processes", createProcessHandler(processService))

	// serialNumber and quantity missing
	w := doJSON(router, http.MethodPost, "/api/v1/processes",
		`{"role":"MPC Work","productName":"Starter Motor","itemName":"Armature","subItemName":"Shaft"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestGetProcessHandler_NotFound(t *testing.T) {
	router, processService, _ := newTestRouter(t, nil)
	router.GET("/api/v1/processes/:processId", getProcessHandler(processService))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "RESOURCE_NOT_FOUND" {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %s", code)
	}
}

func TestAcceptActivityHandler(t *testing.T) {
	accepted := domain.NewServiceProcess("proc-1", "Starter Motor", "Armature", "Shaft", "SN-1001", 1, domain.ItemTypeService, domain.StageDisassemble)
	if err := accepted.Accept("emp-7"); err != nil {
		t.Fatalf("failed to accept activity: %v", err)
	}

	repo := &fakeProcessRepo{
		AcceptCurrentActivityFn: func(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error) {
			return accepted, nil
		},
	}
	router, processService, _ := newTestRouter(t, repo)
	router.POST("/api/v1/processes/:processId/accept", acceptActivityHandler(processService))

	w := doJSON(router, http.MethodPost, "/api/v1/processes/proc-1/accept", `{"employeeId":"emp-7"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Activities []struct {
			EmployeeID string `json:"employeeId"`
			Status     string `json:"status"`
		} `json:"activities"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Activities) != 1 || resp.Activities[0].EmployeeID != "emp-7" {
		t.Fatalf("expected activity assigned to emp-7, got %+v", resp.Activities)
	}
}

func TestCompleteActivityHandler_RejectsUnknownOutcome(t *testing.T) {
	router, processService, _ := newTestRouter(t, nil)
	router.POST("/api/v1/processes/:processId/complete", completeActivityHandler(processService))

	w := doJSON(router, http.MethodPost, "/api/v1/processes/proc-1/complete",
		`{"employeeId":"emp-7","outcome":"DONE"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestRequestMaterialsHandler_RequiresRequester(t *testing.T) {
	router, _, ledgerService := newTestRouter(t, nil)
	router.POST("/api/v1/material-requests", requestMaterialsHandler(ledgerService))

	// storeKeeperId alone is not enough; the requesting employee must be named
	w := doJSON(router, http.MethodPost, "/api/v1/material-requests",
		`{"storeKeeperId":"emp-9","lines":[{"materialId":"MAT-COPPER","quantity":2}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestConsumeMaterialHandler_RejectsEmptyMaterials(t *testing.T) {
	router, _, ledgerService := newTestRouter(t, nil)
	router.POST("/api/v1/material-usages", consumeMaterialHandler(ledgerService))

	w := doJSON(router, http.MethodPost, "/api/v1/material-usages",
		`{"employeeId":"emp-7","processId":"proc-1","materials":[]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestDecideRequestHandler_RejectsUnknownDecision(t *testing.T) {
	router, _, ledgerService := newTestRouter(t, nil)
	router.POST("/api/v1/material-requests/:requestId/decision", decideRequestHandler(ledgerService))

	w := doJSON(router, http.MethodPost, "/api/v1/material-requests/req-1/decision",
		`{"decidedBy":"mgr-1","decision":"MAYBE"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSubmitDisassemblyHandler_RejectsEmptyItems(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	m := metrics.New(metrics.DefaultConfig("test"))
	logger := logging.New(logging.DefaultConfig("test"))
	disassembleService := application.NewDisassembleService(&fakeProcessRepo{}, m, logger)
	router.POST("/api/v1/processes/:processId/disassemble", submitDisassemblyHandler(disassembleService))

	w := doJSON(router, http.MethodPost, "/api/v1/processes/proc-1/disassemble",
		`{"sessionId":"tok","employeeId":"emp-7","receivingEmployeeId":"emp-9","items":[]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestLoadRoleProfiles(t *testing.T) {
	t.Run("empty keeps the built-in mapping", func(t *testing.T) {
		t.Setenv("ROLE_PROFILES", "")
		profiles, err := loadRoleProfiles()
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if profiles != nil {
			t.Fatalf("expected nil profiles, got %+v", profiles)
		}
	})

	t.Run("valid override", func(t *testing.T) {
		t.Setenv("ROLE_PROFILES", `{"Rework":{"itemType":"SERVICE","initialStage":"Rework"}}`)
		profiles, err := loadRoleProfiles()
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		profile, ok := profiles["Rework"]
		if !ok {
			t.Fatalf("expected Rework profile, got %+v", profiles)
		}
		if profile.ItemType != domain.ItemTypeService || profile.InitialStage != "Rework" {
			t.Fatalf("unexpected profile: %+v", profile)
		}
	})

	t.Run("unknown item type is rejected", func(t *testing.T) {
		t.Setenv("ROLE_PROFILES", `{"Rework":{"itemType":"USED","initialStage":"Rework"}}`)
		if _, err := loadRoleProfiles(); err == nil {
			t.Fatal("expected an error for unknown item type")
		}
	})

	t.Run("missing initial stage is rejected", func(t *testing.T) {
		t.Setenv("ROLE_PROFILES", `{"Rework":{"itemType":"NEW"}}`)
		if _, err := loadRoleProfiles(); err == nil {
			t.Fatal("expected an error for missing initial stage")
		}
	})
}
