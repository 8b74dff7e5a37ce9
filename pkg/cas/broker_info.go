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
	"fmt"

	"github.com/cectc/cubrid-go/pkg/constant"
)

// BrokerInfo is the 8-byte capability block a broker returns when a
// session is opened.
//
// Bytes 4..6 are read two ways. When the protocol indicator bit (0x40) of
// byte 4 is set, byte 4 holds the protocol revision, byte 5 the function
// flags and byte 6 is reserved. Older brokers put a major, minor and patch
// version there instead.
type BrokerInfo [constant.BrokerInfoSize]byte

// DefaultBrokerInfo is assumed until the first handshake completes.
var DefaultBrokerInfo = BrokerInfo{
	constant.DBMSCubrid,
	1,
	0,
	0,
	constant.ProtoIndicator | constant.ProtocolVersion,
	0,
	0,
	0,
}

func (b BrokerInfo) DBMSType() byte {
	return b[constant.BrokerInfoDBMSType]
}

func (b BrokerInfo) KeepConnection() bool {
	return b[constant.BrokerInfoKeepConnection] == 1
}

func (b BrokerInfo) StatementPooling() bool {
	return b[constant.BrokerInfoStatementPooling] == 1
}

func (b BrokerInfo) CCIPConnect() bool {
	return b[constant.BrokerInfoCCIPConnect] == 1
}

// IsNewProtocol reports whether the version byte carries the protocol indicator.
func (b BrokerInfo) IsNewProtocol() bool {
	return b[constant.BrokerInfoProtoVersion]&constant.ProtoIndicator == constant.ProtoIndicator
}

// ProtocolVersion is the negotiated revision, V0 for old style brokers.
func (b BrokerInfo) ProtocolVersion() byte {
	if !b.IsNewProtocol() {
		return constant.ProtocolV0
	}
	return b[constant.BrokerInfoProtoVersion] & constant.ProtoVersionMask
}

// Version packs the broker version so that versions compare as integers.
// New protocol brokers yield MakeProtoVersion(rev). Old brokers yield
// major<<24 | minor<<16 | patch<<8, or zero when major is out of range.
func (b BrokerInfo) Version() int32 {
	if b.IsNewProtocol() {
		return MakeProtoVersion(b.ProtocolVersion())
	}
	major := int32(b[constant.BrokerInfoMajorVersion])
	minor := int32(b[constant.BrokerInfoMinorVersion])
	patch := int32(b[constant.BrokerInfoPatchVersion])
	if major > 0x3f {
		return 0
	}
	return major<<24 | minor<<16 | patch<<8
}

// MakeProtoVersion is the packed form of a new style protocol revision.
func MakeProtoVersion(rev byte) int32 {
	return int32(constant.ProtoIndicator)<<24 | int32(rev&constant.ProtoVersionMask)
}

// ProtoVersionIsAbove reports whether the broker speaks at least revision rev.
func (b BrokerInfo) ProtoVersionIsAbove(rev byte) bool {
	return b.Version() >= MakeProtoVersion(rev)
}

func (b BrokerInfo) functionFlag(flag byte) bool {
	if !b.IsNewProtocol() {
		return false
	}
	return b[constant.BrokerInfoFunctionFlag]&flag == flag
}

func (b BrokerInfo) RenewedErrorCode() bool {
	return b.functionFlag(constant.BrokerRenewedErrorCode)
}

func (b BrokerInfo) SupportHoldableResult() bool {
	return b.functionFlag(constant.BrokerSupportHoldableResult)
}

func (b BrokerInfo) ReconnectWhenServerDown() bool {
	return b.functionFlag(constant.BrokerReconnectWhenServerDown)
}

func (b BrokerInfo) String() string {
	if b.IsNewProtocol() {
		return fmt.Sprintf("dbms=%d keep=%t pooling=%t protocol=V%d flags=%#x",
			b.DBMSType(), b.KeepConnection(), b.StatementPooling(), b.ProtocolVersion(),
			b[constant.BrokerInfoFunctionFlag])
	}
	return fmt.Sprintf("dbms=%d keep=%t pooling=%t version=%d.%d.%d",
		b.DBMSType(), b.KeepConnection(), b.StatementPooling(),
		b[constant.BrokerInfoMajorVersion], b[constant.BrokerInfoMinorVersion], b[constant.BrokerInfoPatchVersion])
}

// CASInfo is the 4-byte block the broker returns on every response and
// expects back on the next request.
type CASInfo [constant.CASInfoSize]byte

// NewCASInfo returns an inactive block.
func NewCASInfo() CASInfo {
	return CASInfo{constant.CASStatusInactive, 0xff, 0xff, 0xff}
}

func (c CASInfo) Status() byte {
	return c[constant.CASInfoStatus]
}

func (c CASInfo) IsActive() bool {
	return c.Status() == constant.CASStatusActive
}

func (c *CASInfo) SetStatus(status byte) {
	c[constant.CASInfoStatus] = status
}
