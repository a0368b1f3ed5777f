package simulation

import "fmt"

// ErrorKind classifies why a simulation could not produce a result.
type ErrorKind string

const (
	KindInputMissing      ErrorKind = "input_missing"
	KindInputOutOfRange   ErrorKind = "input_out_of_range"
	KindInputWrongType    ErrorKind = "input_wrong_type"
	KindInputMalformed    ErrorKind = "input_malformed"
	KindEngineUnreachable ErrorKind = "engine_unreachable"
	KindEngineTimeout     ErrorKind = "engine_timeout"
	KindEngineInternal    ErrorKind = "engine_internal_fault"
	KindParseFailure      ErrorKind = "parse_failure"
	KindUnknown           ErrorKind = "unknown"
)

var kindCodes = map[ErrorKind]string{
	KindInputMissing:      "MISSING_INPUT",
	KindInputOutOfRange:   "INVALID_INPUT",
	KindInputWrongType:    "WRONG_TYPE",
	KindInputMalformed:    "MALFORMED_INPUT",
	KindEngineUnreachable: "ENGINE_UNREACHABLE",
	KindEngineTimeout:     "ENGINE_TIMEOUT",
	KindEngineInternal:    "ENGINE_ERROR",
	KindParseFailure:      "PARSE_ERROR",
	KindUnknown:           "UNKNOWN",
}

// Code returns the machine-readable code reported to clients.
func (k ErrorKind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

// IsInput reports whether the kind describes a caller input problem that can be
// answered with a "needs input" response.
func (k ErrorKind) IsInput() bool {
	switch k {
	case KindInputMissing, KindInputOutOfRange, KindInputWrongType, KindInputMalformed:
		return true
	}
	return false
}

// KindFromCode maps an engine or client error code back to its kind.
// Both the machine codes and the kind names are accepted.
func KindFromCode(code string) ErrorKind {
	for k, c := range kindCodes {
		if c == code || string(k) == code {
			return k
		}
	}
	return KindUnknown
}

// Failure is the error arm of an Outcome.
type Failure struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind.Code(), f.Message)
}

// Issue describes a single invalid or missing tool argument.
type Issue struct {
	Field   string    `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
