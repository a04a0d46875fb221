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
)

var requestPacket = &Packet{
	LeapVersionMode: NewRequestLeapVersionMode(),
	Stratum:         0,
	Poll:            4,
	Precision:       -6,
	RootDelay:       0,
	RootDispersion:  0,
	ReferenceID:     0,
	RefTime:         Timestamp{},
	OriginTime:      Timestamp{},
	ReceiveTime:     Timestamp{},
	TransmitTime:    Timestamp{Seconds: 3000, Fractions: 1000},
}

func TestPacketRoundTrip(t *testing.T) {
	bytes, err := requestPacket.Bytes()
	assert.NoError(t, err)
	assert.Len(t, bytes, PacketSizeBytes)

	parsed, err := BytesToPacket(bytes)
	assert.NoError(t, err)
	assert.Equal(t, requestPacket, parsed)
}

func TestBytesToPacketTooSmall(t *testing.T) {
	_, err := BytesToPacket([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewRequestLeapVersionMode(t *testing.T) {
	b := NewRequestLeapVersionMode()
	assert.Equal(t, uint8(ModeClient), b&modeBitsMask)
	assert.Equal(t, uint8(Version), (b>>versionShift)&0x07)
	assert.Equal(t, LeapNone, LeapIndicator(b>>leapShift))
}

func TestModeAndLeapIndicatorField(t *testing.T) {
	p := &Packet{LeapVersionMode: uint8(LeapAlarm)<<leapShift | Version<<versionShift | ModeServer}
	assert.Equal(t, uint8(ModeServer), p.Mode())
	assert.Equal(t, LeapAlarm, p.LeapIndicatorField())
}

func TestIsKissOfDeath(t *testing.T) {
	p := &Packet{Stratum: 0}
	assert.True(t, p.IsKissOfDeath())

	p.Stratum = 1
	assert.False(t, p.IsKissOfDeath())
}

func TestPacketSize(t *testing.T) {
	bytes, err := requestPacket.Bytes()
	assert.NoError(t, err)
	assert.Equal(t, 48, len(bytes))
}
