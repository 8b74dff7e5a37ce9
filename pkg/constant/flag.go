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

import "time"

// Handshake.
const (
	DriverMagic = "CUBRK"

	ClientJDBC byte = 3

	ProtoIndicator   byte = 0x40
	ProtoVersionMask byte = 0x3f

	// ProtocolVersion is the highest protocol revision this client speaks.
	ProtocolVersion byte = 2

	DriverInfoSize = 10
	DBNameSize     = 32
	UserSize       = 32
	PasswordSize   = 32
	URLSize        = 512
	SessionIDSize  = 20
	DBInfoSize     = DBNameSize + UserSize + PasswordSize + URLSize + SessionIDSize

	BrokerInfoSize = 8
	CASInfoSize    = 4
)

// Protocol revisions a broker may announce.
const (
	ProtocolV0 byte = iota
	ProtocolV1
	ProtocolV2
	ProtocolV3
	ProtocolV4
	ProtocolV5
)

// Offsets into the broker info block. Offsets 4..6 have two readings
// depending on the protocol indicator bit of the version byte.
const (
	BrokerInfoDBMSType         = 0
	BrokerInfoKeepConnection   = 1
	BrokerInfoStatementPooling = 2
	BrokerInfoCCIPConnect      = 3
	BrokerInfoProtoVersion     = 4
	BrokerInfoFunctionFlag     = 5
	BrokerInfoReserved2        = 6
	BrokerInfoReserved3        = 7

	BrokerInfoMajorVersion = 4
	BrokerInfoMinorVersion = 5
	BrokerInfoPatchVersion = 6
)

// Function flag bits announced by new protocol brokers.
const (
	BrokerRenewedErrorCode        byte = 0x80
	BrokerSupportHoldableResult   byte = 0x40
	BrokerReconnectWhenServerDown byte = 0x20
)

const (
	DBMSCubrid byte = 1
	DBMSMySQL  byte = 2
	DBMSOracle byte = 3
)

// CAS info status byte.
const (
	CASInfoStatus = 0

	CASStatusInactive byte = 0
	CASStatusActive   byte = 1
	CASStatusOutTran  byte = 2
)

// Prepare flags.
const (
	PrepareIncludeOID byte = 0x01
	PrepareUpdatable  byte = 0x02
	PrepareQueryInfo  byte = 0x04
	PrepareHoldable   byte = 0x08
	PrepareCall       byte = 0x40
)

// Execute flags.
const (
	ExecuteAsync         byte = 0x01
	ExecuteQueryAll      byte = 0x02
	ExecuteQueryInfo     byte = 0x04
	ExecuteOnlyQueryPlan byte = 0x08
	ExecuteHoldable      byte = 0x20
)

// Cursor origins.
const (
	CursorSet int32 = 0
	CursorCur int32 = 1
	CursorEnd int32 = 2
)

const (
	QueryInfoPlan byte = 0x01
)

const (
	DefaultFetchSize = 100

	// BoolTrue is how the broker represents a true boolean parameter bound as SHORT.
	BoolTrue  int16 = -128
	BoolFalse int16 = 0
)

// Database parameters for GET/SET_DB_PARAMETER.
const (
	ParamIsolationLevel  int32 = 1
	ParamLockTimeout     int32 = 2
	ParamMaxStringLength int32 = 3
	ParamAutoCommit      int32 = 4
)

// Isolation levels understood by the broker.
const (
	TranUnknownIsolation int32 = iota
	TranCommitClassUncommitInstance
	TranCommitClassCommitInstance
	TranRepClassUncommitInstance
	TranRepClassCommitInstance
	TranRepClassRepInstance
	TranSerializable
)

const (
	LockTimeoutNotUsed  int32 = -2
	LockTimeoutInfinite int32 = -1
)

// END_TRANSACTION types.
const (
	EndTranCommit   byte = 1
	EndTranRollback byte = 2
)

// Statement kinds. They decide how column info is decoded.
type StatementKind int

const (
	StatementNormal StatementKind = iota
	StatementGetByOID
	StatementGetSchemaInfo
	StatementGetAutoIncrementKeys
	// StatementOutResultSet reads a result set returned through a stored
	// procedure out parameter.
	StatementOutResultSet
)

// Schema info request types.
const (
	SchemaClass int32 = iota + 1
	SchemaVClass
	SchemaQuerySpec
	SchemaAttribute
	SchemaClassAttribute
	SchemaMethod
	SchemaClassMethod
	SchemaMethodFile
	SchemaSuperClass
	SchemaSubClass
	SchemaConstraint
	SchemaTrigger
	SchemaClassPrivilege
	SchemaAttrPrivilege
	SchemaDirectSuperClass
	SchemaPrimaryKey
	SchemaImportedKeys
	SchemaExportedKeys
	SchemaCrossReference
)

// Schema info pattern flags.
const (
	SchemaPatternNone  byte = 0
	SchemaClassPattern byte = 1
	SchemaAttrPattern  byte = 2
	SchemaBothPattern  byte = 3
)

// RELATED_TO_OID commands.
const (
	OIDDrop       byte = 1
	OIDIsInstance byte = 2
	OIDLockRead   byte = 3
	OIDLockWrite  byte = 4
	OIDClassName  byte = 5
)

// Side channel messages.
const (
	CancelMagic   = "CANCEL"
	CancelMagicV1 = "QC"
	PingMagic     = "PING_TEST!"
)

const (
	SocketTimeout         = 5000 * time.Millisecond
	DefaultConnectTimeout = 30 * time.Second
	DefaultReconnectTime  = 600 * time.Second
	DefaultUnreachableTTL = 600 * time.Second
	DefaultSweepInterval  = time.Second
	DefaultProbeInterval  = 10 * time.Second

	// MaxFrameSize bounds the declared length of a response frame.
	MaxFrameSize = 1 << 30
)

const (
	ConfigPathKey = "config"
	EnvCASConfig  = "CASCTL_CONFIG"
)
