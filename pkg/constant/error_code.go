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

package constant

// Error indicators carried as the negative result code of a response.
const (
	CASErrorIndicator  int32 = -1
	DBMSErrorIndicator int32 = -2
)

// Driver side error codes.
const (
	ErDBMS int32 = -21001 - iota
	ErInternal
	ErNoMoreMemory
	ErCommunication
	ErNoMoreData
	ErTypeConversion
	ErBindIndex
	ErNotBound
	ErWasNull
	ErColumnIndex
	ErTruncate
	ErSchemaType
	ErFile
	ErConnection
	ErIsolationLevel
	ErIllegalRequest
	ErInvalidArgument
	ErIsClosed
	ErIllegalFlag
	ErIllegalDataSize
	ErNoMoreResult
	ErOIDNotIncluded
	ErCmdIsNotInsert
	ErInvalidURL
	ErTimeout
	ErNotUpdatable
	ErInvalidCursorPosition
	ErUnknownHost
	ErUnknown
)

// Broker (CAS) error codes.
const (
	CASErInternal int32 = -10001 - iota
	CASErNoMoreMemory
	CASErCommunication
	CASErArgs
	CASErTranType
	CASErSrvHandle
	CASErNumBind
	CASErUnknownUType
	CASErDBValue
	CASErTypeConversion
	CASErParamName
	CASErNoMoreData
	CASErObject
	CASErOpenFile
	CASErSchemaType
	CASErVersion
	CASErFreeServer
	CASErNotAuthorizedClient
	CASErQueryCancel
	CASErNotCollection
	CASErCollectionDomain
	CASErNoMoreResultSet
	CASErInvalidCallStmt
	CASErStmtPooling
	CASErDBServerDisconnected
	CASErMaxPreparedStmtCountExceeded
	CASErHoldableNotAllowed
)

// DBMS error codes that mean the database server went away underneath the broker.
const (
	ErTMServerDownUnilaterallyAborted int32 = -111
	ErNetServerCrashed                int32 = -199
	ErBOConnectFailed                 int32 = -224
	ErNetCantConnectServer            int32 = -677
	ErOBJNoConnect                    int32 = -1053
)

var driverErrorMessages = map[int32]string{
	ErDBMS:                  "DBMS error",
	ErInternal:              "internal error",
	ErNoMoreMemory:          "memory allocation error",
	ErCommunication:         "cannot communicate with the broker",
	ErNoMoreData:            "invalid cursor position",
	ErTypeConversion:        "type conversion error",
	ErBindIndex:             "invalid parameter index",
	ErNotBound:              "attempt to execute the query when not all the parameters are binded",
	ErWasNull:               "last read value was null",
	ErColumnIndex:           "column index is out of range",
	ErTruncate:              "data is truncated",
	ErSchemaType:            "internal error: illegal schema type",
	ErFile:                  "file access failed",
	ErConnection:            "cannot connect to a broker",
	ErIsolationLevel:        "unknown transaction isolation level",
	ErIllegalRequest:        "internal error: the requested information is not available",
	ErInvalidArgument:       "the argument is invalid",
	ErIsClosed:              "connection or statement might be closed",
	ErIllegalFlag:           "internal error: invalid argument",
	ErIllegalDataSize:       "cannot communicate with the broker or received invalid packet",
	ErNoMoreResult:          "no more results",
	ErOIDNotIncluded:        "this result set does not include the OID",
	ErCmdIsNotInsert:        "the command is not insert",
	ErInvalidURL:            "invalid url",
	ErTimeout:               "request timed out",
	ErNotUpdatable:          "the result set is not updatable",
	ErInvalidCursorPosition: "invalid cursor position",
	ErUnknownHost:           "unknown host",
	ErUnknown:               "error",
}

// DriverErrorMessage returns the canonical text for a driver error code.
func DriverErrorMessage(code int32) string {
	if msg, ok := driverErrorMessages[code]; ok {
		return msg
	}
	return driverErrorMessages[ErUnknown]
}
