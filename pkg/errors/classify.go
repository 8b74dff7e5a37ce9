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

import "github.com/cectc/cubrid-go/pkg/constant"

var serverDownCodes = map[int32]struct{}{
	constant.ErTMServerDownUnilaterallyAborted: {},
	constant.ErNetServerCrashed:                {},
	constant.ErBOConnectFailed:                 {},
	constant.ErNetCantConnectServer:            {},
	constant.ErOBJNoConnect:                    {},
}

// IsServerDown reports whether the database server behind the broker is gone.
func IsServerDown(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindDBMS:
		_, down := serverDownCodes[e.ServerCode]
		return down
	case KindCAS:
		return e.ServerCode == constant.CASErDBServerDisconnected
	}
	return false
}

// IsBrokerBusy reports whether the broker had no free CAS for the request.
func IsBrokerBusy(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindCAS && e.ServerCode == constant.CASErFreeServer
}

// IsStatementPooling reports whether the broker dropped a pooled handle.
func IsStatementPooling(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindCAS && e.ServerCode == constant.CASErStmtPooling
}

// IsReconnectable reports whether err should make the connection drop its
// socket and retry the operation once on a fresh one.
func IsReconnectable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindDriver:
		return e.Code == constant.ErCommunication || e.Code == constant.ErIllegalDataSize
	case KindCAS:
		return e.ServerCode == constant.CASErCommunication || IsBrokerBusy(err) || IsServerDown(err)
	case KindDBMS:
		return IsServerDown(err)
	}
	return false
}

// IsConnectionClass reports whether a failover loop should mark the host
// unreachable and move on to the next one.
func IsConnectionClass(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	if e.Kind != KindDriver {
		return IsBrokerBusy(err) || IsServerDown(err)
	}
	switch e.Code {
	case constant.ErCommunication, constant.ErConnection, constant.ErTimeout, constant.ErIllegalDataSize, constant.ErUnknownHost:
		return true
	}
	return false
}
