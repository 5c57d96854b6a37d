package api

import (
	"encoding/json"
	"fmt"
)

// Kind classifies the outcome of a gateway request.
type Kind string

const (
	KindOK                 Kind = "ok"
	KindOffline            Kind = "offline"
	KindCancelled          Kind = "cancelled"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindServerError        Kind = "server_error"
	KindServiceUnavailable Kind = "service_unavailable"
	KindParseError         Kind = "parse_error"
	KindNetworkError       Kind = "network_error"
	KindGeneric            Kind = "generic"
)

// Result is the uniform outcome of every gateway call. The gateway never
// returns a raw error for a classified outcome; callers branch on Success
// and Kind instead of recovering from panics or unwrapping errors.
type Result struct {
	Success bool
	Kind    Kind
	Status  int
	Data    json.RawMessage
	Message string

	// Errors carries machine-readable detail, e.g. field-level validation
	// errors from a 422 response. Shape is server-defined.
	Errors json.RawMessage

	// Silent marks failures that should not surface in the UI, e.g. a GET
	// poll that exhausted its network retries.
	Silent bool
}

func success(status int, data json.RawMessage) Result {
	return Result{Success: true, Kind: KindOK, Status: status, Data: data}
}

func failure(kind Kind, status int, message string) Result {
	return Result{Kind: kind, Status: status, Message: message}
}

// envelope is the conventional response shape of the Pratibha backend.
// Bodies that do not match are treated as opaque payloads.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

func fallbackMessage(status int) string {
	return fmt.Sprintf("Request failed with status %d", status)
}
