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

// UType is the wire type tag the broker uses for column values and bind parameters.
type UType byte

const (
	TypeNull UType = iota
	TypeChar
	TypeString
	TypeNChar
	TypeVarNChar
	TypeBit
	TypeVarBit
	TypeNumeric
	TypeInt
	TypeShort
	TypeMonetary
	TypeFloat
	TypeDouble
	TypeDate
	TypeTime
	TypeTimestamp
	TypeSet
	TypeMultiSet
	TypeSequence
	TypeObject
	TypeResultSet
	TypeBigInt
	TypeDateTime
	TypeBlob
	TypeClob
	TypeEnum
)

// Collection flags packed into the high bits of a column type byte.
// The low five bits then carry the element type.
const (
	CollectionMask     byte = 0x60
	CollectionSet      byte = 0x20
	CollectionMultiSet byte = 0x40
	CollectionSequence byte = 0x60
	BaseTypeMask       byte = 0x1f
)

var typeNames = map[UType]string{
	TypeNull:      "NULL",
	TypeChar:      "CHAR",
	TypeString:    "VARCHAR",
	TypeNChar:     "NCHAR",
	TypeVarNChar:  "VARNCHAR",
	TypeBit:       "BIT",
	TypeVarBit:    "VARBIT",
	TypeNumeric:   "NUMERIC",
	TypeInt:       "INTEGER",
	TypeShort:     "SMALLINT",
	TypeMonetary:  "MONETARY",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeDate:      "DATE",
	TypeTime:      "TIME",
	TypeTimestamp: "TIMESTAMP",
	TypeSet:       "SET",
	TypeMultiSet:  "MULTISET",
	TypeSequence:  "SEQUENCE",
	TypeObject:    "OBJECT",
	TypeResultSet: "RESULTSET",
	TypeBigInt:    "BIGINT",
	TypeDateTime:  "DATETIME",
	TypeBlob:      "BLOB",
	TypeClob:      "CLOB",
	TypeEnum:      "ENUM",
}

func (t UType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UType(%d)", byte(t))
}

// IsCollection reports whether t is SET, MULTISET or SEQUENCE.
func (t UType) IsCollection() bool {
	return t == TypeSet || t == TypeMultiSet || t == TypeSequence
}

// IsString reports whether values of t travel as charset encoded strings.
func (t UType) IsString() bool {
	switch t {
	case TypeChar, TypeString, TypeNChar, TypeVarNChar, TypeEnum:
		return true
	}
	return false
}

// IsNumeric reports whether values of t can be coerced to a number.
func (t UType) IsNumeric() bool {
	switch t {
	case TypeNumeric, TypeInt, TypeShort, TypeMonetary, TypeFloat, TypeDouble, TypeBigInt:
		return true
	}
	return false
}

// IsTemporal reports whether t is one of the date/time types.
func (t UType) IsTemporal() bool {
	switch t {
	case TypeDate, TypeTime, TypeTimestamp, TypeDateTime:
		return true
	}
	return false
}

// UnpackType splits a column type byte into the outer type and the
// element type. For scalar columns the element type is TypeNull.
func UnpackType(b byte) (outer UType, element UType) {
	switch b & CollectionMask {
	case CollectionSet:
		return TypeSet, UType(b & BaseTypeMask)
	case CollectionMultiSet:
		return TypeMultiSet, UType(b & BaseTypeMask)
	case CollectionSequence:
		return TypeSequence, UType(b & BaseTypeMask)
	}
	return UType(b), TypeNull
}

// PackType is the inverse of UnpackType.
func PackType(outer UType, element UType) byte {
	switch outer {
	case TypeSet:
		return CollectionSet | byte(element)&BaseTypeMask
	case TypeMultiSet:
		return CollectionMultiSet | byte(element)&BaseTypeMask
	case TypeSequence:
		return CollectionSequence | byte(element)&BaseTypeMask
	}
	return byte(outer)
}

// CommandType is the statement classification returned by PREPARE.
type CommandType byte

const (
	CommandAlterClass CommandType = iota
	CommandAlterSerial
	CommandCommitWork
	CommandRegisterDatabase
	CommandCreateClass
	CommandCreateIndex
	CommandCreateTrigger
	CommandCreateSerial
	CommandDropDatabase
	CommandDropClass
	CommandDropIndex
	CommandDropLabel
	CommandDropTrigger
	CommandDropSerial
	CommandEvaluate
	CommandRenameClass
	CommandRollbackWork
	CommandGrant
	CommandRevoke
	CommandUpdateStats
	CommandInsert
	CommandSelect
	CommandUpdate
	CommandDelete
	CommandCall
	CommandGetIsoLvl
	CommandGetTimeout
	CommandGetOptLvl
	CommandSetOptLvl
	CommandScope
	CommandGetTrigger
	CommandSetTrigger
	CommandSavepoint
	CommandPrepare
	CommandAttach
	CommandUse
	CommandRemoveTrigger
	CommandRenameTrigger
	CommandOnLdb
	CommandGetLdb
	CommandSetLdb
	CommandGetStats
	CommandCreateUser
	CommandDropUser
	CommandAlterUser
	CommandSetSysParams
	CommandAlterIndex
	CommandCreateStoredProcedure
	CommandDropStoredProcedure
	CommandSelectUpdate
	CommandMerge

	CommandCallSP  CommandType = 0x7e
	CommandUnknown CommandType = 0x7f
)

// IsQuery reports whether the statement produces a tuple set the client fetches.
func (c CommandType) IsQuery() bool {
	switch c {
	case CommandSelect, CommandCall, CommandGetStats, CommandEvaluate, CommandCallSP, CommandSelectUpdate:
		return true
	}
	return false
}

// CarriesValueType reports whether fetched attributes are prefixed by their own type byte.
func (c CommandType) CarriesValueType() bool {
	return c == CommandCall || c == CommandEvaluate || c == CommandCallSP
}
