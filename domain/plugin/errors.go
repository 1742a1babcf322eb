package plugin

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the orchestrator should treat them. All kinds are fatal for the task.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindData          Kind = "data"
)

// Error is a coded plugin error. Two errors match under errors.Is when their codes are equal,
// so callers compare against the exported sentinels below.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrRequiredParameter        = &Error{Kind: KindConfiguration, Code: "ERROR_REQUIRED_PARAMETER"}
	ErrInvalidParameterType     = &Error{Kind: KindConfiguration, Code: "ERROR_INVALID_PARAMETER_TYPE"}
	ErrInvalidSecretType        = &Error{Kind: KindConfiguration, Code: "ERROR_INVALID_SECRET_TYPE"}
	ErrInvalidSourceType        = &Error{Kind: KindConfiguration, Code: "ERROR_INVALID_SOURCE_TYPE"}
	ErrNotFoundTable            = &Error{Kind: KindValidation, Code: "ERROR_NOT_FOUND_TABLE"}
	ErrNotExistTargetProjectID  = &Error{Kind: KindValidation, Code: "ERROR_NOT_EXIST_TARGET_PROJECT_ID"}
	ErrInvalidOrganization      = &Error{Kind: KindValidation, Code: "ERROR_INVALID_ORGANIZATION"}
	ErrTooManyCSVFiles          = &Error{Kind: KindValidation, Code: "ERROR_TOO_MANY_CSV_FILES"}
	ErrInvalidBillingAccount    = &Error{Kind: KindValidation, Code: "ERROR_INVALID_BILLING_ACCOUNT"}
	ErrExchangeRateDataNotFound = &Error{Kind: KindData, Code: "ERROR_EXCHANGE_RATE_DATA_NOT_FOUND"}
	ErrNotFoundExchangeRate     = &Error{Kind: KindData, Code: "ERROR_NOT_FOUND_EXCHANGE_RATE"}
	ErrInvalidCostRow           = &Error{Kind: KindData, Code: "ERROR_INVALID_COST_ROW"}
)

func newError(base *Error, err error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...), Err: err}
}

// RequiredParameter names the dotted key that was missing, e.g. "secret_data.project_id".
func RequiredParameter(key string) *Error {
	return newError(ErrRequiredParameter, nil, "required parameter: key = %s", key)
}

func InvalidParameterType(key, want string) *Error {
	return newError(ErrInvalidParameterType, nil, "invalid parameter type: key = %s, type = %s", key, want)
}

func InvalidSecretType(secretType string) *Error {
	return newError(ErrInvalidSecretType, nil, "invalid secret type: %s", secretType)
}

func InvalidSourceType(source string) *Error {
	return newError(ErrInvalidSourceType, nil, "invalid source type: %s", source)
}

func NotFoundTable(table, dataset string) *Error {
	return newError(ErrNotFoundTable, nil, "not found table: %s / dataset: %s", table, dataset)
}

func NotExistTargetProjectID(value any) *Error {
	return newError(ErrNotExistTargetProjectID, nil, "not exist target_project_id: %v", value)
}

func InvalidOrganization(org string) *Error {
	return newError(ErrInvalidOrganization, nil, "organization not valid: %s", org)
}

func TooManyCSVFiles(dir string) *Error {
	return newError(ErrTooManyCSVFiles, nil, "too many csv files: %s", dir)
}

func InvalidBillingAccount(name string) *Error {
	return newError(ErrInvalidBillingAccount, nil, "cannot parse billing account name: %q", name)
}

func ExchangeRateDataNotFound(path string, err error) *Error {
	return newError(ErrExchangeRateDataNotFound, err, "exchange rate data not found: %s", path)
}

func NotFoundExchangeRate(year, month int) *Error {
	return newError(ErrNotFoundExchangeRate, nil, "invalid exchange rate: %d-%d", year, month)
}

func InvalidCostRow(err error, format string, args ...any) *Error {
	return newError(ErrInvalidCostRow, err, format, args...)
}
