package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string identifier of an error condition, prefixed by the
// module that owns it (COMMON, MOL, DESC, CALC).
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Molecule input error codes.
const (
	ErrCodeMoleculeInvalidSMILES  ErrorCode = "MOL_001"
	ErrCodeMoleculeInvalidFormat  ErrorCode = "MOL_003"
	ErrCodeMoleculeParsingFailed  ErrorCode = "MOL_006"
	ErrCodeMoleculeUnknownElement ErrorCode = "MOL_016"
	ErrCodeConformerNotFound      ErrorCode = "MOL_017"
)

// Descriptor engine error codes.
const (
	ErrCodeInvalidDescriptorJSON ErrorCode = "DESC_001"
	ErrCodeUnknownDescriptor     ErrorCode = "DESC_002"
	ErrCodeInvalidDescriptorArgs ErrorCode = "DESC_003"
	ErrCodeCyclicDependency      ErrorCode = "DESC_004"
	ErrCodeEmptyModule           ErrorCode = "DESC_005"
	ErrCodeCalculationFailed     ErrorCode = "DESC_006"
	ErrCodeMissingValue          ErrorCode = "DESC_007"
	ErrCodeCriticalCalculation   ErrorCode = "DESC_008"
)

// Calculation service error codes.
const (
	ErrCodeRunNotFound     ErrorCode = "CALC_001"
	ErrCodeEmptyInput      ErrorCode = "CALC_002"
	ErrCodeExportFailed    ErrorCode = "CALC_003"
	ErrCodePublishFailed   ErrorCode = "CALC_004"
	ErrCodeTooManyMolecule ErrorCode = "CALC_005"
)

// ErrorCodeHTTPStatus maps codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeMoleculeInvalidSMILES:  http.StatusUnprocessableEntity,
	ErrCodeMoleculeInvalidFormat:  http.StatusUnprocessableEntity,
	ErrCodeMoleculeParsingFailed:  http.StatusUnprocessableEntity,
	ErrCodeMoleculeUnknownElement: http.StatusUnprocessableEntity,
	ErrCodeConformerNotFound:      http.StatusNotFound,

	ErrCodeInvalidDescriptorJSON: http.StatusBadRequest,
	ErrCodeUnknownDescriptor:     http.StatusBadRequest,
	ErrCodeInvalidDescriptorArgs: http.StatusBadRequest,
	ErrCodeCyclicDependency:      http.StatusBadRequest,
	ErrCodeEmptyModule:           http.StatusBadRequest,
	ErrCodeCalculationFailed:     http.StatusUnprocessableEntity,
	ErrCodeMissingValue:          http.StatusUnprocessableEntity,
	ErrCodeCriticalCalculation:   http.StatusInternalServerError,

	ErrCodeRunNotFound:     http.StatusNotFound,
	ErrCodeEmptyInput:      http.StatusBadRequest,
	ErrCodeExportFailed:    http.StatusBadGateway,
	ErrCodePublishFailed:   http.StatusBadGateway,
	ErrCodeTooManyMolecule: http.StatusRequestEntityTooLarge,
}

// ErrorCodeMessage holds default messages per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "not found",
	ErrCodeConflict:           "conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeMoleculeInvalidSMILES:  "invalid SMILES",
	ErrCodeMoleculeInvalidFormat:  "invalid molecule format",
	ErrCodeMoleculeParsingFailed:  "molecule parsing failed",
	ErrCodeMoleculeUnknownElement: "unknown element",
	ErrCodeConformerNotFound:      "conformer not found",

	ErrCodeInvalidDescriptorJSON: "invalid json",
	ErrCodeUnknownDescriptor:     "unknown class",
	ErrCodeInvalidDescriptorArgs: "invalid descriptor arguments",
	ErrCodeCyclicDependency:      "cyclic descriptor dependency",
	ErrCodeEmptyModule:           "module has no descriptors",
	ErrCodeCalculationFailed:     "descriptor calculation failed",
	ErrCodeMissingValue:          "missing value",
	ErrCodeCriticalCalculation:   "critical calculation error",

	ErrCodeRunNotFound:     "calculation run not found",
	ErrCodeEmptyInput:      "no input molecules",
	ErrCodeExportFailed:    "export failed",
	ErrCodePublishFailed:   "publish failed",
	ErrCodeTooManyMolecule: "too many molecules in request",
}

// HTTPStatusForCode returns the HTTP status for code, 500 when unmapped.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for code.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of code ("DESC" for "DESC_002").
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
