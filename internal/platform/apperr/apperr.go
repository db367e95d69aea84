// Package apperr defines the stable error taxonomy shared by every
// dispatch-core component. Handlers map these to HTTP status codes;
// internal callers match on Code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeRideAlreadyTaken   Code = "RIDE_ALREADY_TAKEN"
	CodeAlreadyRated       Code = "ALREADY_RATED"
	CodeInvalidOTP         Code = "INVALID_OTP"
	CodeConflict           Code = "CONFLICT"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeBadCoordinate      Code = "BAD_COORDINATE"
	CodeUnknownVehicleType Code = "UNKNOWN_VEHICLE_TYPE"
	CodeInternal           Code = "INTERNAL"
)

var httpStatus = map[Code]int{
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeInvalidTransition:  http.StatusConflict,
	CodeRideAlreadyTaken:   http.StatusConflict,
	CodeAlreadyRated:       http.StatusConflict,
	CodeInvalidOTP:         http.StatusBadRequest,
	CodeConflict:           http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeBadCoordinate:      http.StatusBadRequest,
	CodeUnknownVehicleType: http.StatusBadRequest,
	CodeInternal:           http.StatusInternalServerError,
}

// AppError is the error type every component returns across package
// boundaries. It carries enough information for a transport layer to
// respond correctly without re-deriving an HTTP status from a message
// string.
type AppError struct {
	HTTPStatus int
	Code       Code
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError for a given stable code, deriving its HTTP
// status from the fixed mapping above.
func New(code Code, message string, err error) *AppError {
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{HTTPStatus: status, Code: code, Message: message, Err: err}
}

func NewValidation(message string) *AppError        { return New(CodeValidation, message, nil) }
func NewUnauthenticated(message string) *AppError    { return New(CodeUnauthenticated, message, nil) }
func NewForbidden(message string) *AppError          { return New(CodeForbidden, message, nil) }
func NewNotFound(message string) *AppError           { return New(CodeNotFound, message, nil) }
func NewInvalidTransition(message string) *AppError  { return New(CodeInvalidTransition, message, nil) }
func NewRideAlreadyTaken() *AppError {
	return New(CodeRideAlreadyTaken, "ride already has an assigned driver", nil)
}
func NewAlreadyRated() *AppError {
	return New(CodeAlreadyRated, "this side has already submitted a rating for this ride", nil)
}
func NewInvalidOTP() *AppError {
	return New(CodeInvalidOTP, "otp does not match", nil)
}
func NewConflict(message string) *AppError { return New(CodeConflict, message, nil) }
func NewUnavailable(message string, err error) *AppError {
	return New(CodeUnavailable, message, err)
}
func NewBadCoordinate(message string) *AppError { return New(CodeBadCoordinate, message, nil) }
func NewInternal(message string, err error) *AppError {
	return New(CodeInternal, message, err)
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// As extracts the *AppError from err, if any.
func As(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}
