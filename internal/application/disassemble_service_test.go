package application

import (
	"context"
	"testing"

	sharedErrors "github.com/rms-platform/pipeline-service/pkg/errors"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// rejectedAtTesting returns a process redirected to Disassemble with an armed
// session token.
func rejectedAtTesting(t *testing.T) *domain.ServiceProcess {
	t.Helper()
	p := processInProgressAt(t, domain.StageTesting, domain.ItemTypeService)
	if _, err := p.CloseCurrentActivity(domain.ActivityStatusRejected, domain.RedirectReasonRejected, ""); err != nil {
		t.Fatalf("unexpected close err: %v", err)
	}
	p.RedirectTo(domain.StageDisassemble, domain.RedirectReasonRejected)
	return p
}

func newDisassembleService(repo domain.ProcessRepository) *DisassembleService {
	return NewDisassembleService(repo, newTestMetrics(), newTestLogger())
}

func TestDisassembleService_SubmitRecovery(t *testing.T) {
	process := rejectedAtTesting(t)
	token := process.DisassembleSessionID

	var savedRecovery *domain.DisassembleRecovery
	repo := &stubProcessRepo{
		FindByProcessIDFn: func(_ context.Context, _ string) (*domain.ServiceProcess, error) {
			return process, nil
		},
		SaveWithRecoveryFn: func(_ context.Context, _ *domain.ServiceProcess, recovery *domain.DisassembleRecovery) error {
			savedRecovery = recovery
			return nil
		},
	}
	service := newDisassembleService(repo)

	dto, err := service.SubmitRecovery(context.Background(), SubmitDisassemblyCommand{
		ProcessID:           "proc-1",
		SessionID:           token,
		EmployeeID:          "emp-1",
		ReceivingEmployeeID: "emp-2",
		Items:               []domain.RecoveredItem{{MaterialID: "MAT-COPPER", Quantity: 3}},
		Remarks:             "stator wire reusable",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if savedRecovery == nil {
		t.Fatal("expected recovery to be saved with the process")
	}
	if savedRecovery.ReceivingEmployeeID != "emp-2" || len(savedRecovery.Items) != 1 {
		t.Fatalf("unexpected recovery record: %+v", savedRecovery)
	}
	if !dto.IsClosed || dto.FinalStatus != string(domain.FinalStatusRejected) {
		t.Fatalf("expected closed REJECTED process, got %+v", dto)
	}
	if dto.IsRepaired || dto.IsDisassemblePending {
		t.Fatalf("expected unrepaired process with pending flag cleared, got %+v", dto)
	}
	if dto.DisassembleSessionID != "" {
		t.Fatal("expected session token to be consumed")
	}
	if dto.DisassembleStatus != string(domain.DisassembleStatusCompleted) {
		t.Fatalf("expected COMPLETED disassemble status, got %s", dto.DisassembleStatus)
	}
}

func TestDisassembleService_SubmitRecoveryRejections(t *testing.T) {
	notPending := processInProgressAt(t, domain.StageDisassemble, domain.ItemTypeService)

	tests := []struct {
		name       string
		process    *domain.ServiceProcess
		sessionID  string
		expectCode string
	}{
		{name: "Missing process", process: nil, sessionID: "whatever", expectCode: sharedErrors.CodeNotFound},
		{name: "No pending disassembly", process: notPending, sessionID: "whatever", expectCode: sharedErrors.CodeInvalidState},
		{name: "Wrong token", process: rejectedAtTesting(t), sessionID: "bogus", expectCode: sharedErrors.CodeInvalidSession},
		{name: "Empty token", process: rejectedAtTesting(t), sessionID: "", expectCode: sharedErrors.CodeInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubProcessRepo{
				FindByProcessIDFn: func(_ context.Context, _ string) (*domain.ServiceProcess, error) {
					return tt.process, nil
				},
			}
			service := newDisassembleService(repo)

			_, err := service.SubmitRecovery(context.Background(), SubmitDisassemblyCommand{
				ProcessID:           "proc-1",
				SessionID:           tt.sessionID,
				EmployeeID:          "emp-1",
				ReceivingEmployeeID: "emp-2",
			})
			assertAppErrorCode(t, err, tt.expectCode)
		})
	}
}

func TestDisassembleService_TokenSingleUse(t *testing.T) {
	process := rejectedAtTesting(t)
	token := process.DisassembleSessionID
	repo := &stubProcessRepo{
		FindByProcessIDFn: func(_ context.Context, _ string) (*domain.ServiceProcess, error) {
			return process, nil
		},
	}
	service := newDisassembleService(repo)

	cmd := SubmitDisassemblyCommand{
		ProcessID:           "proc-1",
		SessionID:           token,
		EmployeeID:          "emp-1",
		ReceivingEmployeeID: "emp-2",
	}

	if _, err := service.SubmitRecovery(context.Background(), cmd); err != nil {
		t.Fatalf("expected first submit to succeed, got %v", err)
	}

	_, err := service.SubmitRecovery(context.Background(), cmd)
	assertAppErrorCode(t, err, sharedErrors.CodeInvalidState)
}
