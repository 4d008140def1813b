package application

import (
	"github.com/rms-platform/pipeline-service/pkg/errors"

	"github.com/rms-platform/pipeline-service/internal/domain"
)

// The domain packages return sentinel errors and know nothing about HTTP.
// Registering them here lets middleware classify any sentinel that reaches
// the boundary unmapped, without inspecting error messages.
func init() {
	register := func(sentinel error, build func(msg string) *errors.AppError) {
		errors.RegisterSentinel(sentinel, func(err error) *errors.AppError {
			appErr := build(sentinel.Error())
			appErr.Err = err
			return appErr
		})
	}

	register(domain.ErrConcurrentModification, errors.ErrConflict)

	register(domain.ErrProcessClosed, errors.ErrInvalidState)
	register(domain.ErrNoCurrentActivity, errors.ErrInvalidState)
	register(domain.ErrActivityNotPending, errors.ErrInvalidState)
	register(domain.ErrActivityNotInProgress, errors.ErrInvalidState)
	register(domain.ErrActivityAlreadyAssigned, errors.ErrAlreadyAssigned)
	register(domain.ErrActivityAlreadyStarted, errors.ErrInvalidState)
	register(domain.ErrActivityNotOwned, errors.ErrUnauthorized)
	register(domain.ErrFailureReasonRequired, errors.ErrValidation)
	register(domain.ErrDisassembleNotPending, errors.ErrInvalidState)
	register(domain.ErrInvalidSessionToken, errors.ErrInvalidSession)
	register(domain.ErrDuplicateSameDayUnit, errors.ErrDuplicateProcess)

	register(domain.ErrRequestAlreadyProcessed, errors.ErrAlreadyProcessed)
	register(domain.ErrRequestNotApproved, errors.ErrInvalidState)
	register(domain.ErrRequestDeclined, errors.ErrInvalidState)
	register(domain.ErrMaterialAlreadyGiven, errors.ErrAlreadyProcessed)
	register(domain.ErrDeclineRemarksRequired, errors.ErrValidation)
	register(domain.ErrInsufficientStock, errors.ErrInsufficientStock)
	register(domain.ErrInsufficientPersonalStock, errors.ErrInsufficientPersonalStock)
	register(domain.ErrStockNotHeld, func(msg string) *errors.AppError {
		return errors.ErrNotFound("UserItemStock")
	})
}
