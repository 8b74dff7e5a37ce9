/*
 * Copyright 2022 CECTC, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cectc/cubrid-go/pkg/constant"
)

// Kind tells where an error was raised.
type Kind int

const (
	// KindDriver errors are raised locally by the client.
	KindDriver Kind = iota
	// KindCAS errors are reported by the broker process itself.
	KindCAS
	// KindDBMS errors are reported by the database server behind the broker.
	KindDBMS
)

func (k Kind) String() string {
	switch k {
	case KindDriver:
		return "driver"
	case KindCAS:
		return "cas"
	case KindDBMS:
		return "dbms"
	}
	return "unknown"
}

// CUBRIDError is the error type every package of this module returns
// for protocol level failures.
type CUBRIDError struct {
	Kind Kind
	// Code is the driver error code, or ErDBMS for server side errors.
	Code int32
	// ServerCode is the code reported by the broker or the database.
	ServerCode int32
	Message    string

	cause error
}

// NewDriverError creates a local error. An empty format falls back to the
// canonical message for the code.
func NewDriverError(code int32, format string, args ...interface{}) *CUBRIDError {
	msg := constant.DriverErrorMessage(code)
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &CUBRIDError{
		Kind:    KindDriver,
		Code:    code,
		Message: msg,
	}
}

// WrapDriverError creates a local error caused by err, typically an I/O failure.
func WrapDriverError(code int32, err error) *CUBRIDError {
	e := NewDriverError(code, "")
	if err != nil {
		e.Message = fmt.Sprintf("%s: %v", e.Message, err)
		e.cause = err
	}
	return e
}

// NewServerError builds the error carried by a response with a negative result code.
func NewServerError(indicator int32, serverCode int32, message string) *CUBRIDError {
	kind := KindDBMS
	if indicator == constant.CASErrorIndicator {
		kind = KindCAS
	}
	return &CUBRIDError{
		Kind:       kind,
		Code:       constant.ErDBMS,
		ServerCode: serverCode,
		Message:    message,
	}
}

func (e *CUBRIDError) Error() string {
	if e.Kind == KindDriver {
		return fmt.Sprintf("cubrid %s error %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("cubrid %s error %d: %s", e.Kind, e.ServerCode, e.Message)
}

func (e *CUBRIDError) Unwrap() error {
	return e.cause
}

// Cause implements the github.com/pkg/errors causer interface.
func (e *CUBRIDError) Cause() error {
	return e.cause
}

// As extracts the first CUBRIDError in err's chain.
func As(err error) (*CUBRIDError, bool) {
	var e *CUBRIDError
	if err == nil {
		return nil, false
	}
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Code returns the driver code of err, ErUnknown for foreign errors and
// zero for nil.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return constant.ErUnknown
}

// ServerCode returns the broker or database code of err, zero when err is
// not a server error.
func ServerCode(err error) int32 {
	if e, ok := As(err); ok && e.Kind != KindDriver {
		return e.ServerCode
	}
	return 0
}

// Is reports whether err carries the driver code.
func Is(err error, code int32) bool {
	e, ok := As(err)
	return ok && e.Kind == KindDriver && e.Code == code
}

var (
	ErrIsClosed        = NewDriverError(constant.ErIsClosed, "")
	ErrNoMoreData      = NewDriverError(constant.ErNoMoreData, "")
	ErrNoMoreResult    = NewDriverError(constant.ErNoMoreResult, "")
	ErrNotBound        = NewDriverError(constant.ErNotBound, "")
	ErrOIDNotIncluded  = NewDriverError(constant.ErOIDNotIncluded, "")
	ErrCmdIsNotInsert  = NewDriverError(constant.ErCmdIsNotInsert, "")
	ErrNotUpdatable    = NewDriverError(constant.ErNotUpdatable, "")
	ErrTypeConversion  = NewDriverError(constant.ErTypeConversion, "")
	ErrIllegalDataSize = NewDriverError(constant.ErIllegalDataSize, "")
)
