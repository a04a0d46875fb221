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
	"testing"

	"github.com/stretchr/testify/assert"

	wire "github.com/chronos-io/coresntp/protocol/sntp"
)

// fakeClock returns a queue of timestamps, repeating the last one once
// exhausted, the way core_sntp_client_utest.c's fake GetTime_t injects a
// scripted sequence of readings.
type fakeClock struct {
	times []wire.Timestamp
	idx   int
}

func (f *fakeClock) GetTime() wire.Timestamp {
	if f.idx < len(f.times) {
		t := f.times[f.idx]
		f.idx++
		return t
	}
	if len(f.times) == 0 {
		return wire.Timestamp{}
	}
	return f.times[len(f.times)-1]
}

func secs(s uint32) wire.Timestamp { return wire.Timestamp{Seconds: s} }

type fakeResolver struct {
	ip uint32
	ok bool
}

func (f fakeResolver) ResolveDNS(ServerInfo) (uint32, bool) { return f.ip, f.ok }

// ioStep scripts one Send/Receive return value.
type ioStep struct {
	n   int
	err error
}

// fakeTransport scripts a sequence of tri-valued returns for Send and a
// separate sequence for Receive, optionally copying scripted bytes into the
// caller's buffer on a positive Receive.
type fakeTransport struct {
	sendSteps []ioStep
	sendIdx   int

	recvSteps []ioStep
	recvIdx   int
	recvData  []byte
	recvAt    int
}

func (f *fakeTransport) Send(uint32, uint16, []byte) (int, error) {
	s := f.sendSteps[f.sendIdx]
	if f.sendIdx < len(f.sendSteps)-1 {
		f.sendIdx++
	}
	return s.n, s.err
}

// Receive copies from recvData on a positive step, modeling a real
// SOCK_DGRAM socket: one successful call hands back an entire datagram, never
// a partial prefix of one, so tests script exactly one positive ioStep per
// response packet.
func (f *fakeTransport) Receive(_ uint32, _ uint16, buffer []byte) (int, error) {
	s := f.recvSteps[f.recvIdx]
	if f.recvIdx < len(f.recvSteps)-1 {
		f.recvIdx++
	}
	if s.n > 0 && f.recvData != nil {
		copy(buffer, f.recvData[f.recvAt:f.recvAt+s.n])
		f.recvAt += s.n
	}
	return s.n, s.err
}

func newTestContext(t *testing.T, clock *fakeClock, transport *fakeTransport, responseTimeoutMs uint32) *Context {
	t.Helper()
	servers := []ServerInfo{{Name: "time1.example.com"}, {Name: "time2.example.com"}}
	buffer := make([]byte, wire.PacketSizeBytes+16)

	setTime := func(ServerInfo, wire.Timestamp, int32, wire.LeapIndicator) {}

	ctx, status := NewContext(servers, buffer, responseTimeoutMs, fakeResolver{ip: 0x01020304, ok: true}, clock, setTime, transport, nil)
	assert.Equal(t, Success, status)
	return ctx
}

func TestNewContextValidation(t *testing.T) {
	buffer := make([]byte, wire.PacketSizeBytes)
	clock := &fakeClock{}
	transport := &fakeTransport{}
	setTime := func(ServerInfo, wire.Timestamp, int32, wire.LeapIndicator) {}

	_, status := NewContext(nil, buffer, 1000, fakeResolver{}, clock, setTime, transport, nil)
	assert.Equal(t, ErrorBadParameter, status)

	_, status = NewContext([]ServerInfo{{Name: "x"}}, make([]byte, 4), 1000, fakeResolver{}, clock, setTime, transport, nil)
	assert.Equal(t, ErrorBufferTooSmall, status)
}

// TestSendTimeRequestDNSFailure covers the "stays in Ready(i)" transition on
// DNS failure.
func TestSendTimeRequestDNSFailure(t *testing.T) {
	clock := &fakeClock{times: []wire.Timestamp{secs(1000)}}
	transport := &fakeTransport{}
	ctx := newTestContext(t, clock, transport, 5000)
	ctx.resolver = fakeResolver{ok: false}

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, ErrorDNSFailure, status)
	assert.Equal(t, 0, ctx.currentServerIndex)
}

// TestSendTimeRequestRetrySuccess is scenario S5: transport returns 0, 0,
// then the full packet.
func TestSendTimeRequestRetrySuccess(t *testing.T) {
	clock := &fakeClock{times: []wire.Timestamp{secs(1000), secs(1000), secs(1000), secs(1000)}}
	transport := &fakeTransport{sendSteps: []ioStep{{n: 0}, {n: 0}, {n: wire.PacketSizeBytes}}}
	ctx := newTestContext(t, clock, transport, 5000)

	status := ctx.SendTimeRequest(0xAABBCCDD)
	assert.Equal(t, Success, status)
}

// TestSendTimeRequestRetryDeadline is property 10: a zero return held past
// SendRetryTimeoutMs fails with ErrorNetworkFailure.
func TestSendTimeRequestRetryDeadline(t *testing.T) {
	old := SendRetryTimeoutMs
	SendRetryTimeoutMs = 100
	defer func() { SendRetryTimeoutMs = old }()

	clock := &fakeClock{times: []wire.Timestamp{
		secs(1000), // T1
		secs(1000), // lastSendTime at loop entry
		secs(1000), // now, after first would-block
	}}
	// third GetTime call reports 1000s still elapsed 0ms < 100ms tolerate,
	// so extend the script to eventually cross the deadline.
	clock.times = append(clock.times, secs(1001))
	transport := &fakeTransport{sendSteps: []ioStep{{n: 0}}}
	ctx := newTestContext(t, clock, transport, 5000)

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, ErrorNetworkFailure, status)
}

func TestSendTimeRequestNetworkError(t *testing.T) {
	clock := &fakeClock{times: []wire.Timestamp{secs(1000), secs(1000)}}
	transport := &fakeTransport{sendSteps: []ioStep{{n: -1}}}
	ctx := newTestContext(t, clock, transport, 5000)

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, ErrorNetworkFailure, status)
}

// buildSuccessResponse builds a valid accepted response echoing
// requestTime, sized to arrive as a single whole datagram.
func buildSuccessResponse(t *testing.T, requestTime wire.Timestamp, t2, t3 wire.Timestamp) []byte {
	t.Helper()
	pkt := &wire.Packet{
		LeapVersionMode: wire.Version<<3 | wire.ModeServer,
		Stratum:         1,
		OriginTime:      requestTime,
		ReceiveTime:     t2,
		TransmitTime:    t3,
	}
	b, err := pkt.Bytes()
	assert.NoError(t, err)
	return b
}

// TestFullCycleSuccess exercises SendTimeRequest followed by
// ReceiveTimeResponse end to end against scripted collaborators.
func TestFullCycleSuccess(t *testing.T) {
	t1 := secs(3000)
	clock := &fakeClock{times: []wire.Timestamp{
		t1,         // T1 captured in SendTimeRequest
		t1,         // lastSendTime at send-retry loop entry
		secs(3006), // lastSendTime refreshed after the packet is sent
		secs(3006), // loop-start S in ReceiveTimeResponse; repeated for T4 once the datagram arrives
	}}

	response := buildSuccessResponse(t, t1, secs(3002), secs(3004))

	transport := &fakeTransport{
		sendSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvData:  response,
	}
	ctx := newTestContext(t, clock, transport, 5000)

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, Success, status)

	status = ctx.ReceiveTimeResponse(1000)
	assert.Equal(t, Success, status)
}

// TestReceiveTimeResponseTimeout is scenario S6.
func TestReceiveTimeResponseTimeout(t *testing.T) {
	clock := &fakeClock{times: []wire.Timestamp{
		secs(1000), // T1
		secs(1000), // lastSendTime at loop entry
		secs(1000), // lastSendTime refreshed after the packet is sent
		secs(1005), // loop-start S, repeated after an empty Receive: elapsed since T1 = 5000ms >= responseTimeoutMs
	}}
	transport := &fakeTransport{
		sendSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvSteps: []ioStep{{n: 0}},
	}
	ctx := newTestContext(t, clock, transport, 5000)

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, Success, status)

	status = ctx.ReceiveTimeResponse(10000)
	assert.Equal(t, ErrorResponseTimeout, status)
}

func TestReceiveTimeResponseNoResponseYet(t *testing.T) {
	clock := &fakeClock{times: []wire.Timestamp{
		secs(1000), // T1
		secs(1000), // lastSendTime at loop entry
		secs(1000), // lastSendTime refreshed after the packet is sent
		secs(1000), // loop-start S, repeated after an empty Receive: elapsed since S = 0ms
	}}
	transport := &fakeTransport{
		sendSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvSteps: []ioStep{{n: 0}},
	}
	ctx := newTestContext(t, clock, transport, 60000)

	status := ctx.SendTimeRequest(0)
	assert.Equal(t, Success, status)

	// blockTimeMs of 0 means the very first elapsed(now,S) >= 0 check ends
	// the poll immediately once no data is ready.
	status = ctx.ReceiveTimeResponse(0)
	assert.Equal(t, NoResponseReceived, status)
}

// TestServerRotationOnKissOfDeath is property 9 / scenario S3: a KoD
// response advances the cursor by exactly one and collapses to
// RejectedResponse.
func TestServerRotationOnKissOfDeath(t *testing.T) {
	t1 := secs(3000)
	clock := &fakeClock{times: []wire.Timestamp{
		t1, t1, secs(3001), secs(3001), secs(3001),
	}}

	pkt := &wire.Packet{
		LeapVersionMode: wire.Version<<3 | wire.ModeServer,
		Stratum:         0,
		ReferenceID:     kissCodeRate,
		OriginTime:      t1,
	}
	response, err := pkt.Bytes()
	assert.NoError(t, err)

	transport := &fakeTransport{
		sendSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvSteps: []ioStep{{n: wire.PacketSizeBytes}},
		recvData:  response,
	}
	ctx := newTestContext(t, clock, transport, 5000)

	assert.Equal(t, Success, ctx.SendTimeRequest(0))
	assert.Equal(t, RejectedResponse, ctx.ReceiveTimeResponse(1000))
	assert.Equal(t, 1, ctx.currentServerIndex)
}

// TestExhaustedServerList covers the Exhausted state: once the cursor
// reaches len(servers), both entry points return ErrorChangeServer.
func TestExhaustedServerList(t *testing.T) {
	clock := &fakeClock{}
	transport := &fakeTransport{}
	ctx := newTestContext(t, clock, transport, 5000)
	ctx.currentServerIndex = len(ctx.servers)

	assert.Equal(t, ErrorChangeServer, ctx.SendTimeRequest(0))
	assert.Equal(t, ErrorChangeServer, ctx.ReceiveTimeResponse(0))
}

func TestNilContextMethods(t *testing.T) {
	var ctx *Context
	assert.Equal(t, ErrorBadParameter, ctx.SendTimeRequest(0))
	assert.Equal(t, ErrorBadParameter, ctx.ReceiveTimeResponse(0))
}
