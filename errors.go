// Copyright 2024 The Restbridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package restbridge

import (
	"errors"
	"fmt"

	"github.com/restbridge/restbridge/connector"
)

// Family is the hundred's-digit classification of an HTTP status code.
type Family int

const (
	FamilyOther Family = iota
	FamilyInformational
	FamilySuccessful
	FamilyRedirection
	FamilyClientError
	FamilyServerError
)

// FamilyOf derives the family of a status code deterministically.
func FamilyOf(code int) Family {
	switch code / 100 {
	case 1:
		return FamilyInformational
	case 2:
		return FamilySuccessful
	case 3:
		return FamilyRedirection
	case 4:
		return FamilyClientError
	case 5:
		return FamilyServerError
	default:
		return FamilyOther
	}
}

func (f Family) String() string {
	switch f {
	case FamilyInformational:
		return "informational"
	case FamilySuccessful:
		return "successful"
	case FamilyRedirection:
		return "redirection"
	case FamilyClientError:
		return "client error"
	case FamilyServerError:
		return "server error"
	default:
		return "other"
	}
}

// StatusKind identifies the variant of a StatusError. Common status codes
// map to their own kind; everything else falls back to a family kind.
type StatusKind int

const (
	KindUnexpectedStatus StatusKind = iota
	KindRedirection
	KindClientError
	KindServerError
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindNotAcceptable
	KindUnsupportedMediaType
	KindInternalServerError
	KindServiceUnavailable
)

// exactStatusKinds maps well-known status codes to their dedicated kind.
// Codes absent here fall back to kindForFamily; the two are independent so
// a new code can be added without touching the family logic.
var exactStatusKinds = map[int]StatusKind{
	400: KindBadRequest,
	401: KindUnauthorized,
	403: KindForbidden,
	404: KindNotFound,
	405: KindMethodNotAllowed,
	406: KindNotAcceptable,
	415: KindUnsupportedMediaType,
	500: KindInternalServerError,
	503: KindServiceUnavailable,
}

func kindForStatus(code int) StatusKind {
	if kind, ok := exactStatusKinds[code]; ok {
		return kind
	}
	return kindForFamily(FamilyOf(code))
}

func kindForFamily(family Family) StatusKind {
	switch family {
	case FamilyRedirection:
		return KindRedirection
	case FamilyClientError:
		return KindClientError
	case FamilyServerError:
		return KindServerError
	default:
		return KindUnexpectedStatus
	}
}

func (k StatusKind) String() string {
	switch k {
	case KindRedirection:
		return "redirection"
	case KindClientError:
		return "client error"
	case KindServerError:
		return "server error"
	case KindBadRequest:
		return "bad request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindNotAcceptable:
		return "not acceptable"
	case KindUnsupportedMediaType:
		return "unsupported media type"
	case KindInternalServerError:
		return "internal server error"
	case KindServiceUnavailable:
		return "service unavailable"
	default:
		return "unexpected status"
	}
}

// StatusError reports a well-formed response whose status indicates a
// client or server failure. It carries the full response, with its entity
// buffered, so the caller can still inspect headers and body.
type StatusError struct {
	Code     int
	Kind     StatusKind
	Response *connector.Response
}

// Family derives the status family from the code.
func (e *StatusError) Family() Family {
	return FamilyOf(e.Code)
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with %d %s (%s)", e.Code, e.Response.Reason, e.Kind)
}

// statusErrorFor converts a non-2xx response into its typed error. The
// entity stream is buffered and closed so the connection cannot leak even
// if the caller never touches the carried response.
func statusErrorFor(resp *connector.Response) *StatusError {
	_ = resp.Buffer()
	return &StatusError{
		Code:     resp.StatusCode,
		Kind:     kindForStatus(resp.StatusCode),
		Response: resp,
	}
}

// IsStatus reports whether err is a StatusError for the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// ResponseError reports that a response with a successful status could not
// be decoded into the requested shape. It carries the assembled response.
type ResponseError struct {
	Response *connector.Response
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("failed to process response entity: %v", e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// InvocationStateError reports a method/entity mismatch caught before any
// network activity.
type InvocationStateError struct {
	Method string
	Reason string
}

func (e *InvocationStateError) Error() string {
	return fmt.Sprintf("invalid invocation: %s for method %s", e.Reason, e.Method)
}

// ErrClientClosed is returned for invocations attempted after Close.
var ErrClientClosed = errors.New("client is closed")
