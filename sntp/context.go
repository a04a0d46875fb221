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
	log "github.com/sirupsen/logrus"

	wire "github.com/chronos-io/coresntp/protocol/sntp"
)

// Default retry/deadline constants. These are variables, not untyped
// consts, so a driver can override them at process start the way the
// original library's compile-time configuration macros would be tuned per
// target; the engine itself only ever reads them.
var (
	// SendRetryTimeoutMs bounds how long SendTimeRequest tolerates
	// consecutive would-block sends before giving up with
	// ErrorNetworkFailure.
	SendRetryTimeoutMs uint32 = 1000
)

// Context aggregates one SNTP client's server list, cursor, network buffer
// and plug-in collaborators. It is single-consumer: callers must not
// interleave SendTimeRequest/ReceiveTimeResponse cycles on the same
// Context.
type Context struct {
	servers            []ServerInfo
	currentServerIndex int

	buffer         []byte
	sntpPacketSize int

	responseTimeoutMs uint32

	currentServerIP uint32
	lastRequestTime wire.Timestamp

	resolver  DNSResolver
	timeSrc   TimeSource
	setTime   SetTimeFunc
	transport UDPTransport
	auth      AuthCodec
}

// NewContext validates its arguments and returns a ready Context positioned
// at server index 0, mirroring the original coreSNTP library's Sntp_Init
// contract: every hook but auth is mandatory, the server list is non-empty,
// and the buffer must hold at least one full packet.
func NewContext(
	servers []ServerInfo,
	buffer []byte,
	responseTimeoutMs uint32,
	resolver DNSResolver,
	timeSrc TimeSource,
	setTime SetTimeFunc,
	transport UDPTransport,
	auth AuthCodec,
) (*Context, Status) {
	if len(servers) == 0 || resolver == nil || timeSrc == nil || setTime == nil || transport == nil {
		return nil, ErrorBadParameter
	}
	if len(buffer) < wire.PacketSizeBytes {
		return nil, ErrorBufferTooSmall
	}

	return &Context{
		servers:           servers,
		buffer:            buffer,
		sntpPacketSize:    wire.PacketSizeBytes,
		responseTimeoutMs: responseTimeoutMs,
		resolver:          resolver,
		timeSrc:           timeSrc,
		setTime:           setTime,
		transport:         transport,
		auth:              auth,
	}, Success
}

// exhausted reports whether the server list cursor has reached the end,
// per spec's Exhausted state: i == numOfServers.
func (c *Context) exhausted() bool {
	return c.currentServerIndex >= len(c.servers)
}

func (c *Context) currentServer() ServerInfo {
	return c.servers[c.currentServerIndex]
}

// ServerCursor reports the index of the server the next SendTimeRequest
// will target, for callers that want to track server rotation (e.g. to feed
// a metrics gauge) without reaching into Context internals.
func (c *Context) ServerCursor() int {
	return c.currentServerIndex
}

// SendTimeRequest drives one send attempt against the currently selected
// server: DNS resolve, read T1, serialize, optional auth append, retrying
// UDP send.
func (c *Context) SendTimeRequest(randomNumber uint32) Status {
	if c == nil {
		return ErrorBadParameter
	}
	if c.exhausted() {
		return ErrorChangeServer
	}

	server := c.currentServer()

	ip, ok := c.resolver.ResolveDNS(server)
	if !ok {
		log.WithField("server", server.Name).Warn("sntp: DNS resolution failed")
		return ErrorDNSFailure
	}
	c.currentServerIP = ip

	c.lastRequestTime = c.timeSrc.GetTime()

	status := SerializeRequest(&c.lastRequestTime, randomNumber, c.buffer)
	if status != Success {
		return status
	}

	c.sntpPacketSize = wire.PacketSizeBytes

	if c.auth != nil {
		authSize, authStatus := c.auth.GenerateClientAuth(server, c.buffer)
		if authStatus != Success {
			return authStatus
		}
		if authSize > len(c.buffer)-wire.PacketSizeBytes {
			return ErrorAuthFailure
		}
		c.sntpPacketSize = wire.PacketSizeBytes + authSize
	}

	port := server.Port
	if port == 0 {
		port = DefaultServerPort
	}

	return c.sendWithRetry(ip, port, c.buffer[:c.sntpPacketSize])
}

// sendWithRetry implements the send retry protocol of spec section 4.2:
// loop advancing a pointer over buf until all bytes are sent, tolerating
// would-block returns while elapsed time since the last progress stays
// under SendRetryTimeoutMs.
func (c *Context) sendWithRetry(serverIP uint32, serverPort uint16, buf []byte) Status {
	lastSendTime := c.timeSrc.GetTime()
	sent := 0

	for sent < len(buf) {
		n, err := c.transport.Send(serverIP, serverPort, buf[sent:])
		if err != nil {
			return ErrorNetworkFailure
		}

		if n < 0 {
			// A negative count is the tri-valued convention's error
			// signal; it ends the send with ErrorNetworkFailure.
			log.Error("sntp: transport.Send returned a negative byte count")
			return ErrorNetworkFailure
		}

		if n == 0 {
			now := c.timeSrc.GetTime()
			if elapsedMs(now, lastSendTime) >= SendRetryTimeoutMs {
				return ErrorNetworkFailure
			}
			continue
		}

		if n > len(buf)-sent {
			log.Error("sntp: transport.Send reported more bytes sent than requested")
			n = len(buf) - sent
		}

		sent += n
		lastSendTime = c.timeSrc.GetTime()
	}

	return Success
}

// ReceiveTimeResponse attempts to receive and process one response for the
// outstanding request, polling for up to blockTimeMs while the hard
// responseTimeoutMs deadline (relative to T1) has not yet expired.
//
// Each poll issues a single Receive call sized to the whole expected packet:
// SOCK_DGRAM sockets hand back one entire datagram per recvfrom(2) call (or
// silently discard whatever didn't fit), so there is no "drain the rest of
// this response" phase to retry the way sendWithRetry retries a partial
// send — a zero return here means no datagram is waiting yet, not that part
// of one has arrived.
func (c *Context) ReceiveTimeResponse(blockTimeMs uint32) Status {
	if c == nil {
		return ErrorBadParameter
	}
	if c.exhausted() {
		return ErrorChangeServer
	}

	loopStart := c.timeSrc.GetTime()
	server := c.currentServer()
	port := server.Port
	if port == 0 {
		port = DefaultServerPort
	}

	for {
		n, err := c.transport.Receive(c.currentServerIP, port, c.buffer[:c.sntpPacketSize])
		if err != nil {
			return ErrorNetworkFailure
		}

		if n < 0 {
			log.Error("sntp: transport.Receive returned a negative byte count")
			return ErrorNetworkFailure
		}

		if n > 0 {
			return c.processResponse(n, server)
		}

		now := c.timeSrc.GetTime()
		if elapsedMs(now, c.lastRequestTime) >= c.responseTimeoutMs {
			return ErrorResponseTimeout
		}
		if elapsedMs(now, loopStart) >= blockTimeMs {
			return NoResponseReceived
		}
	}
}

// processResponse validates and parses the n-byte datagram ReceiveTimeResponse
// just read whole off the wire.
func (c *Context) processResponse(n int, server ServerInfo) Status {
	t4 := c.timeSrc.GetTime()

	if n < c.sntpPacketSize {
		log.WithFields(log.Fields{"server": server.Name, "bytes": n}).Warn("sntp: response datagram shorter than expected")
		return InvalidResponse
	}

	if c.auth != nil {
		authStatus := c.auth.ValidateServerAuth(server, c.buffer[:c.sntpPacketSize])
		if authStatus != Success {
			return authStatus
		}
	}

	var parsed ResponseData
	status := DeserializeResponse(&c.lastRequestTime, &t4, c.buffer[:c.sntpPacketSize], &parsed)

	if status.IsKissOfDeath() {
		c.currentServerIndex++
		log.WithFields(log.Fields{
			"server": server.Name,
			"status": status.String(),
			"code":   parsed.RejectedResponseCode,
		}).Warn("sntp: server rejected request")
		return RejectedResponse
	}

	if status == InvalidResponse {
		return InvalidResponse
	}

	// Success or ClockOffsetOverflow: both still carry a usable
	// serverTime/leap indication, so both invoke the set-time hook.
	c.setTime(server, parsed.ServerTime, parsed.ClockOffsetSec, parsed.LeapSecondType)
	return status
}
