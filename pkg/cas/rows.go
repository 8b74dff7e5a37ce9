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
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// Tuple is one fetched row. Index is the 1-based cursor position of the
// row in the whole result set.
type Tuple struct {
	Index  int32
	OID    packet.OID
	Values []packet.Value
}

// Value returns the i-th attribute.
func (t *Tuple) Value(i int) (packet.Value, error) {
	if i < 0 || i >= len(t.Values) {
		return packet.Value{}, err2.NewDriverError(constant.ErColumnIndex, "column index %d out of range [0, %d)", i, len(t.Values))
	}
	return t.Values[i], nil
}

// TupleDecoder knows the shape of the rows of one statement.
type TupleDecoder struct {
	Columns     []*ColumnInfo
	CommandType constant.CommandType
}

// ReadTuples decodes a fetch payload: a tuple count followed by the tuples.
func (d *TupleDecoder) ReadTuples(in *packet.InputBuffer) ([]*Tuple, error) {
	// index and oid at least
	count, err := in.ReadCount(4 + packet.OIDSize)
	if err != nil {
		return nil, err
	}
	tuples := make([]*Tuple, 0, count)
	for i := 0; i < count; i++ {
		tuple, err := d.readTuple(in)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

func (d *TupleDecoder) readTuple(in *packet.InputBuffer) (*Tuple, error) {
	var err error
	tuple := &Tuple{Values: make([]packet.Value, len(d.Columns))}
	if tuple.Index, err = in.ReadInt(); err != nil {
		return nil, err
	}
	if tuple.OID, err = in.ReadOID(); err != nil {
		return nil, err
	}
	for i, col := range d.Columns {
		if tuple.Values[i], err = d.readAttribute(in, col); err != nil {
			return nil, err
		}
	}
	return tuple, nil
}

// ReadObject decodes the attribute list of a single object read by OID.
// Its tuple carries no index or oid of its own on the wire.
func (d *TupleDecoder) ReadObject(in *packet.InputBuffer, oid packet.OID) (*Tuple, error) {
	var err error
	tuple := &Tuple{Index: 1, OID: oid, Values: make([]packet.Value, len(d.Columns))}
	for i, col := range d.Columns {
		if tuple.Values[i], err = d.readAttribute(in, col); err != nil {
			return nil, err
		}
	}
	return tuple, nil
}

// readAttribute decodes one attribute. When the column type is not fixed
// by the statement (CALL results, expressions typed NULL) the value is
// prefixed by its own type byte, counted in the size.
func (d *TupleDecoder) readAttribute(in *packet.InputBuffer, col *ColumnInfo) (packet.Value, error) {
	size, err := in.ReadInt()
	if err != nil {
		return packet.Value{}, err
	}
	if size <= 0 {
		return packet.NullValue(col.Type), nil
	}
	typ := col.Type
	if d.CommandType.CarriesValueType() || col.Type == constant.TypeNull {
		b, err := in.ReadByte()
		if err != nil {
			return packet.Value{}, err
		}
		typ, _ = constant.UnpackType(b)
		size--
	}
	return in.ReadValue(typ, int(size))
}
