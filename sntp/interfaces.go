/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sntp

import (
	wire "github.com/chronos-io/coresntp/protocol/sntp"
)

// DefaultServerPort is the well-known SNTP/NTP UDP port.
const DefaultServerPort uint16 = 123

// ServerInfo is an immutable record identifying one configured time server.
type ServerInfo struct {
	Name string
	Port uint16
}

// DNSResolver resolves a ServerInfo's host name to an IPv4 address, in host
// byte order. The core never performs resolution itself.
type DNSResolver interface {
	ResolveDNS(server ServerInfo) (ipv4 uint32, ok bool)
}

// TimeSource is the core's only way to read the system clock. GetTime must
// be monotonic enough for the elapsed-time checks the engine's retry loops
// perform, including across an NTP era rollover.
type TimeSource interface {
	GetTime() wire.Timestamp
}

// SetTimeFunc is invoked once per successful (or offset-overflowed) receive
// cycle; it is the library's sole externally observable side effect besides
// the caller's own buffer and context.
type SetTimeFunc func(server ServerInfo, serverTime wire.Timestamp, clockOffsetSec int32, leapSecondType wire.LeapIndicator)

// UDPTransport is the cooperative, non-blocking network collaborator the
// engine drives with its own retry/deadline accounting. Send and Receive
// follow the tri-valued convention: n < 0 is an error, n == 0 is
// would-block, n > 0 is bytes transferred (possibly a short count).
type UDPTransport interface {
	Send(serverIP uint32, serverPort uint16, buffer []byte) (n int, err error)
	Receive(serverIP uint32, serverPort uint16, buffer []byte) (n int, err error)
}

// AuthCodec is the optional symmetric-key authentication collaborator.
// Both methods must be supplied together, or neither; the engine never
// calls one without the other being configured.
type AuthCodec interface {
	// GenerateClientAuth appends authentication data to buffer past offset
	// wire.PacketSizeBytes and reports how many bytes it wrote.
	GenerateClientAuth(server ServerInfo, buffer []byte) (authDataSize int, status Status)

	// ValidateServerAuth checks buffer's authentication data. Only
	// Success, ErrorAuthFailure and ServerNotAuthenticated are legal
	// return values.
	ValidateServerAuth(server ServerInfo, buffer []byte) Status
}
