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

// kissCodeDeny, kissCodeRestrict and kissCodeRate are the big-endian u32
// readings of the ASCII Kiss-o'-Death codes this package classifies
// specially. Any other four-byte code falls through to
// RejectedResponseOtherCode.
const (
	kissCodeDeny     = 0x44454E59 // "DENY"
	kissCodeRestrict = 0x52535452 // "RSTR"
	kissCodeRate     = 0x52415445 // "RATE"
)

// leapIndicatorTable maps the wire packet's 2-bit leap field to the engine's
// LeapIndicator enum. Kept as an explicit table (rather than a cast) so a
// reordering of either enum can't silently desynchronize the mapping.
var leapIndicatorTable = map[wire.LeapIndicator]wire.LeapIndicator{
	wire.LeapNone:         wire.LeapNone,
	wire.LeapLastMinute61: wire.LeapLastMinute61,
	wire.LeapLastMinute59: wire.LeapLastMinute59,
	wire.LeapAlarm:        wire.LeapAlarm,
}

// ResponseData is the parsed, validated result of DeserializeResponse.
type ResponseData struct {
	ServerTime           wire.Timestamp
	LeapSecondType       wire.LeapIndicator
	RejectedResponseCode uint32
	ClockOffsetSec       int32
}

// SerializeRequest writes an SNTPv4 client request into buffer, mixing
// randomNumber's high 16 bits into currentTime's low fraction bits for
// replay protection and writing the result back into *currentTime so the
// caller can retain it verbatim as T1 for the later originate-echo check.
func SerializeRequest(currentTime *wire.Timestamp, randomNumber uint32, buffer []byte) Status {
	if currentTime == nil || buffer == nil {
		return ErrorBadParameter
	}
	if len(buffer) < wire.PacketSizeBytes {
		return ErrorBufferTooSmall
	}

	for i := range buffer[:wire.PacketSizeBytes] {
		buffer[i] = 0
	}

	// Replay-protection mix: perturbs only the low 16 bits (~15us),
	// preserving microsecond-level accuracy of the transmit timestamp.
	currentTime.Fractions |= randomNumber >> 16

	pkt := &wire.Packet{
		LeapVersionMode: wire.NewRequestLeapVersionMode(),
		TransmitTime:    *currentTime,
	}

	encoded, err := pkt.Bytes()
	if err != nil {
		return ErrorBadParameter
	}
	copy(buffer, encoded)

	return Success
}

// DeserializeResponse validates and parses an SNTPv4 server response.
// requestTime must be the exact (post-mix) timestamp placed on the wire by
// the paired SerializeRequest call; responseRxTime is T4, the time the
// response was received. On a Kiss-o'-Death response, out is populated only
// with RejectedResponseCode and one of the three RejectedResponse* statuses
// is returned. On an accepted response, out's remaining fields are
// populated and the clock offset is computed from the four timestamps.
func DeserializeResponse(requestTime *wire.Timestamp, responseRxTime *wire.Timestamp, buffer []byte, out *ResponseData) Status {
	if requestTime == nil || responseRxTime == nil || buffer == nil || out == nil {
		return ErrorBadParameter
	}
	if len(buffer) < wire.PacketSizeBytes {
		return ErrorBufferTooSmall
	}

	pkt, err := wire.BytesToPacket(buffer[:wire.PacketSizeBytes])
	if err != nil {
		return InvalidResponse
	}

	if pkt.Mode() != wire.ModeServer {
		return InvalidResponse
	}

	if pkt.OriginTime != *requestTime {
		return InvalidResponse
	}

	if pkt.IsKissOfDeath() {
		*out = ResponseData{RejectedResponseCode: pkt.ReferenceID}
		switch pkt.ReferenceID {
		case kissCodeDeny, kissCodeRestrict:
			return RejectedResponseChangeServer
		case kissCodeRate:
			return RejectedResponseRetryWithBackoff
		default:
			return RejectedResponseOtherCode
		}
	}

	*out = ResponseData{
		ServerTime:           pkt.TransmitTime,
		LeapSecondType:       leapIndicatorTable[pkt.LeapIndicatorField()],
		RejectedResponseCode: 0,
	}

	offset, status := computeClockOffset(*requestTime, pkt.ReceiveTime, pkt.TransmitTime, *responseRxTime)
	out.ClockOffsetSec = offset
	return status
}
