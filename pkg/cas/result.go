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

package cas

import (
	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// ResultInfo describes one statement of an executed request. A request
// running several statements (executeAll) carries one per statement.
type ResultInfo struct {
	StatementType constant.CommandType
	ResultCount   int32
	OID           packet.OID
	CacheTime     packet.CacheTime
}

// ReadResultInfo decodes the result info list of an EXECUTE response.
func ReadResultInfo(in *packet.InputBuffer) ([]*ResultInfo, error) {
	// statement type, count, oid and cache time
	count, err := in.ReadCount(1 + 4 + packet.OIDSize + 8)
	if err != nil {
		return nil, err
	}
	infos := make([]*ResultInfo, 0, count)
	for i := 0; i < count; i++ {
		info := &ResultInfo{}
		stmtType, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		info.StatementType = constant.CommandType(stmtType)
		if info.ResultCount, err = in.ReadInt(); err != nil {
			return nil, err
		}
		if info.OID, err = in.ReadOID(); err != nil {
			return nil, err
		}
		if info.CacheTime, err = in.ReadCacheTime(); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// BatchResult holds one entry per batch item. A failed item does not stop
// the others; ErrorFlag tells whether any failed.
type BatchResult struct {
	Results        []int32
	StatementTypes []constant.CommandType
	ErrorCodes     []int32
	ErrorMessages  []string
	ErrorFlag      bool
}

func NewBatchResult(n int) *BatchResult {
	return &BatchResult{
		Results:        make([]int32, n),
		StatementTypes: make([]constant.CommandType, n),
		ErrorCodes:     make([]int32, n),
		ErrorMessages:  make([]string, n),
	}
}

// Len is the number of batch items.
func (b *BatchResult) Len() int {
	return len(b.Results)
}

// SetResult records a successful item.
func (b *BatchResult) SetResult(i int, count int32, stmtType constant.CommandType) {
	b.Results[i] = count
	b.StatementTypes[i] = stmtType
}

// SetError records a failed item; its result becomes -3, the count used
// for failed batch entries.
func (b *BatchResult) SetError(i int, code int32, message string) {
	b.Results[i] = -3
	b.ErrorCodes[i] = code
	b.ErrorMessages[i] = message
	b.ErrorFlag = true
}
