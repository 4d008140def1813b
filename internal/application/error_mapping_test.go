package application

import (
	"fmt"
	"testing"

	"github.com/rms-platform/pipeline-service/internal/domain"
	"github.com/rms-platform/pipeline-service/pkg/errors"
)

// TestMapDomainSentinels tests that domain sentinels reaching the HTTP
// boundary are classified by identity, wrapped or not.
func TestMapDomainSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode string
	}{
		{name: "Concurrent modification", err: domain.ErrConcurrentModification, expectCode: errors.CodeConflict},
		{name: "Duplicate same-day unit", err: domain.ErrDuplicateSameDayUnit, expectCode: errors.CodeDuplicateProcess},
		{name: "Activity owned by another employee", err: domain.ErrActivityNotOwned, expectCode: errors.CodeUnauthorized},
		{name: "Request already processed", err: domain.ErrRequestAlreadyProcessed, expectCode: errors.CodeAlreadyProcessed},
		{name: "Material already given", err: domain.ErrMaterialAlreadyGiven, expectCode: errors.CodeAlreadyProcessed},
		{name: "Insufficient central stock", err: domain.ErrInsufficientStock, expectCode: errors.CodeInsufficientStock},
		{
			// Repositories wrap transaction failures; identity must survive.
			name:       "Wrapped sentinel",
			err:        fmt.Errorf("transaction failed: %w", domain.ErrDuplicateSameDayUnit),
			expectCode: errors.CodeDuplicateProcess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := errors.MapDomainError(tt.err)
			if appErr == nil {
				t.Fatal("expected an AppError, got nil")
			}
			if appErr.Code != tt.expectCode {
				t.Fatalf("expected code %s, got %s", tt.expectCode, appErr.Code)
			}
		})
	}

	t.Run("Unregistered error falls back to internal", func(t *testing.T) {
		appErr := errors.MapDomainError(fmt.Errorf("socket closed"))
		if appErr == nil {
			t.Fatal("expected an AppError, got nil")
		}
		if appErr.Code != errors.CodeInternalError {
			t.Fatalf("expected code %s, got %s", errors.CodeInternalError, appErr.Code)
		}
	})

	t.Run("Nil maps to nil", func(t *testing.T) {
		if appErr := errors.MapDomainError(nil); appErr != nil {
			t.Fatalf("expected nil, got %v", appErr)
		}
	})
}
