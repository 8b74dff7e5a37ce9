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

import "fmt"

// FunctionCode selects the broker routine a request frame is dispatched to.
type FunctionCode byte

const (
	FCEndTransaction FunctionCode = iota + 1
	FCPrepare
	FCExecute
	FCGetDBParameter
	FCSetDBParameter
	FCCloseStatement
	FCCursor
	FCFetch
	FCGetSchemaInfo
	FCGetByOID
	FCPutByOID
	FCDeprecated1
	FCDeprecated2
	FCDeprecated3
	FCGetDBVersion
	FCGetClassNumObjects
	FCRelatedToOID
	FCRelatedToCollection
	FCNextResult
	FCExecuteBatchStatement
	FCExecuteBatchPreparedStatement
	FCCursorUpdate
	FCGetAttrTypeString
	FCGetQueryInfo
	FCDeprecated4
	FCSavepoint
	FCParameterInfo
	FCXAPrepare
	FCXARecover
	FCXAEndTransaction
	FCConClose
	FCCheckCAS
	FCMakeOutResultSet
	FCGetGeneratedKeys
	FCNewLOB
	FCWriteLOB
	FCReadLOB
	FCEndSession
)

var functionNames = map[FunctionCode]string{
	FCEndTransaction:                "END_TRANSACTION",
	FCPrepare:                       "PREPARE",
	FCExecute:                       "EXECUTE",
	FCGetDBParameter:                "GET_DB_PARAMETER",
	FCSetDBParameter:                "SET_DB_PARAMETER",
	FCCloseStatement:                "CLOSE_USTATEMENT",
	FCCursor:                        "CURSOR",
	FCFetch:                         "FETCH",
	FCGetSchemaInfo:                 "GET_SCHEMA_INFO",
	FCGetByOID:                      "GET_BY_OID",
	FCPutByOID:                      "PUT_BY_OID",
	FCGetDBVersion:                  "GET_DB_VERSION",
	FCGetClassNumObjects:            "GET_CLASS_NUM_OBJS",
	FCRelatedToOID:                  "RELATED_TO_OID",
	FCRelatedToCollection:           "RELATED_TO_COLLECTION",
	FCNextResult:                    "NEXT_RESULT",
	FCExecuteBatchStatement:         "EXECUTE_BATCH_STATEMENT",
	FCExecuteBatchPreparedStatement: "EXECUTE_BATCH_PREPAREDSTATEMENT",
	FCCursorUpdate:                  "CURSOR_UPDATE",
	FCGetAttrTypeString:             "GET_ATTR_TYPE_STR",
	FCGetQueryInfo:                  "GET_QUERY_INFO",
	FCSavepoint:                     "SAVEPOINT",
	FCParameterInfo:                 "PARAMETER_INFO",
	FCXAPrepare:                     "XA_PREPARE",
	FCXARecover:                     "XA_RECOVER",
	FCXAEndTransaction:              "XA_END_TRAN",
	FCConClose:                      "CON_CLOSE",
	FCCheckCAS:                      "CHECK_CAS",
	FCMakeOutResultSet:              "MAKE_OUT_RS",
	FCGetGeneratedKeys:              "GET_GENERATED_KEYS",
	FCNewLOB:                        "NEW_LOB",
	FCWriteLOB:                      "WRITE_LOB",
	FCReadLOB:                       "READ_LOB",
	FCEndSession:                    "END_SESSION",
}

func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FunctionCode(%d)", byte(f))
}
