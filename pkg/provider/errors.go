// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"fmt"
	"net/http"

	"gitlab.com/tozd/go/errors"
)

// 🏷️ Error codes shared by every provider. Transport-status codes map 1:1 to
// the remote status that produced them; the rest are orchestration codes.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeItemNotFound         = "ITEM_NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeBadGateway           = "BAD_GATEWAY"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout       = "GATEWAY_TIMEOUT"
	CodeUnknownError         = "UNKNOWN_ERROR"
	CodeInvalidResponse      = "INVALID_RESPONSE"
	CodeOperationNotFound    = "OPERATION_NOT_FOUND"
	CodeMonitorError         = "MONITOR_ERROR"
)

// 🗺️ statusCodes maps known remote HTTP statuses to error codes
var statusCodes = map[int]string{
	http.StatusBadRequest:            CodeBadRequest,
	http.StatusUnauthorized:          CodeAuthenticationFailed,
	http.StatusForbidden:             CodePermissionDenied,
	http.StatusNotFound:              CodeItemNotFound,
	http.StatusConflict:              CodeConflict,
	http.StatusRequestEntityTooLarge: CodePayloadTooLarge,
	http.StatusTooManyRequests:       CodeRateLimitExceeded,
	http.StatusInternalServerError:   CodeInternalError,
	http.StatusBadGateway:            CodeBadGateway,
	http.StatusServiceUnavailable:    CodeServiceUnavailable,
	http.StatusGatewayTimeout:        CodeGatewayTimeout,
}

// ⚠️ Error is the normalized failure shape consumed by every component.
// It never carries credentials or raw upstream payloads.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode,omitempty"` // remote HTTP status, if any
	Details    map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// 🏭 NewError creates a normalized error with an explicit code
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// 🌐 WrapStatus normalizes a remote failure that carries an HTTP status.
// Unknown statuses map to UNKNOWN_ERROR.
func WrapStatus(status int, message, op string) *Error {
	code, ok := statusCodes[status]
	if !ok {
		code = CodeUnknownError
	}
	if message == "" {
		message = "an unexpected error occurred"
	}
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: status,
		Details:    map[string]any{"operation": op},
	}
}

// 🔄 Wrap normalizes any failure into the taxonomy. Already-normalized errors
// pass through unchanged, so wrapping is idempotent.
func Wrap(err error, op, code string) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if code == "" {
		code = CodeInternalError
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
		Details: map[string]any{"operation": op},
	}
}

// 🔍 AsError extracts a normalized error from an error chain
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// 🏷️ CodeOf returns the normalized code of err, or INTERNAL_ERROR
func CodeOf(err error) string {
	if perr, ok := AsError(err); ok {
		return perr.Code
	}
	return CodeInternalError
}

// 🚦 HTTPStatus returns the nominal HTTP status class for a normalized error
func HTTPStatus(err error) int {
	perr, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch perr.Code {
	case CodeBadRequest, CodeInvalidResponse:
		return http.StatusBadRequest
	case CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeItemNotFound, CodeOperationNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeBadGateway:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		if perr.StatusCode >= 400 {
			return perr.StatusCode
		}
		return http.StatusInternalServerError
	}
}
