package domain

import "errors"

var (
	ErrVehicleNotFound      = errors.New("vehicle not found")
	ErrGenerationMalformed  = errors.New("generated analysis is malformed")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrUserNotFound         = errors.New("user not found")
	ErrReportNotFound       = errors.New("report not found")
	ErrInvalidReportRequest = errors.New("invalid report request")
)
