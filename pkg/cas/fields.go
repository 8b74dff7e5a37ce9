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
	"strings"

	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// ColumnInfo describes one result column. It is immutable once decoded.
type ColumnInfo struct {
	Type        constant.UType
	ElementType constant.UType
	Scale       int16
	Precision   int32
	Name        string

	// The following are only sent for normal statements.
	RealName      string
	TableName     string
	Nullable      bool
	DefaultValue  string
	AutoIncrement bool
	UniqueKey     bool
	PrimaryKey    bool
	ReverseIndex  bool
	ReverseUnique bool
	ForeignKey    bool
	Shared        bool
}

// TypeName renders the column type, e.g. SEQUENCE(INTEGER).
func (c *ColumnInfo) TypeName() string {
	if c.Type.IsCollection() {
		return c.Type.String() + "(" + c.ElementType.String() + ")"
	}
	return c.Type.String()
}

// ReadColumnInfo decodes count column descriptions.
func ReadColumnInfo(in *packet.InputBuffer, count int, kind constant.StatementKind) ([]*ColumnInfo, error) {
	if count < 0 {
		return nil, nil
	}
	columns := make([]*ColumnInfo, 0, count)
	for i := 0; i < count; i++ {
		col, err := readColumn(in, kind)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func readColumn(in *packet.InputBuffer, kind constant.StatementKind) (*ColumnInfo, error) {
	var err error
	col := &ColumnInfo{Nullable: true}

	typ, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	col.Type, col.ElementType = constant.UnpackType(typ)
	if col.Scale, err = in.ReadShort(); err != nil {
		return nil, err
	}
	if col.Precision, err = in.ReadInt(); err != nil {
		return nil, err
	}
	if col.Name, err = in.ReadSizedString(); err != nil {
		return nil, err
	}
	if kind != constant.StatementNormal {
		return col, nil
	}

	if col.RealName, err = in.ReadSizedString(); err != nil {
		return nil, err
	}
	if col.TableName, err = in.ReadSizedString(); err != nil {
		return nil, err
	}
	nullable, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	col.Nullable = nullable == 0
	if col.DefaultValue, err = in.ReadSizedString(); err != nil {
		return nil, err
	}

	flags := []*bool{
		&col.AutoIncrement, &col.UniqueKey, &col.PrimaryKey, &col.ReverseIndex,
		&col.ReverseUnique, &col.ForeignKey, &col.Shared,
	}
	for _, flag := range flags {
		b, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		*flag = b == 1
	}
	return col, nil
}

// ColumnIndexes maps lowercased column names to their position. When two
// columns share a name the first one wins.
func ColumnIndexes(columns []*ColumnInfo) map[string]int {
	m := make(map[string]int, len(columns))
	for i, col := range columns {
		name := strings.ToLower(col.Name)
		if _, ok := m[name]; !ok {
			m[name] = i
		}
	}
	return m
}
