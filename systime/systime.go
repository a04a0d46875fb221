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

// Package systime provides the default, host-backed implementations of the
// sntp.TimeSource collaborator plus a step-or-slew helper drivers use to
// apply the offset a sync cycle reports. The core sntp package never reads
// or writes the system clock directly; everything here lives outside it.
package systime

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/chronos-io/coresntp/clock"
	wire "github.com/chronos-io/coresntp/protocol/sntp"
	"github.com/chronos-io/coresntp/servo"
)

// sntpEpochOffsetSecs is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const sntpEpochOffsetSecs = 2208988800

// Source is the default TimeSource, backed by CLOCK_REALTIME.
type Source struct{}

// NewSource returns the default host clock TimeSource.
func NewSource() Source { return Source{} }

// GetTime reads CLOCK_REALTIME and converts it to an NTP Timestamp.
func (Source) GetTime() wire.Timestamp {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		log.WithError(err).Error("systime: clock_gettime failed")
		return wire.Timestamp{}
	}

	return wire.Timestamp{
		Seconds:   uint32(ts.Sec + sntpEpochOffsetSecs),
		Fractions: uint32((int64(ts.Nsec) << 32) / int64(time.Second)),
	}
}

// Corrector applies a reported clock offset to CLOCK_REALTIME, stepping or
// slewing according to its servo.Config thresholds. It never resets a slew's
// frequency adjustment; that stays in effect until a later call changes it.
type Corrector struct {
	cfg servo.Config
}

// NewCorrector builds a Corrector using servo.DefaultConfig.
func NewCorrector() *Corrector {
	cfg := servo.DefaultConfig()
	return &Corrector{cfg: cfg}
}

// Apply steps or slews CLOCK_REALTIME by offsetSec seconds, the way
// sptp/client/clock.go's PHC driver applies an offset to a PTP hardware
// clock, here directed at the system realtime clock instead. It reports the
// servo.State the decision resolved to.
func (c *Corrector) Apply(offsetSec int32) (servo.State, error) {
	offsetNs := int64(offsetSec) * int64(time.Second)
	state := c.cfg.Decide(offsetNs)

	var err error
	switch state {
	case servo.StateJump:
		_, err = clock.Step(unix.CLOCK_REALTIME, time.Duration(offsetNs))
	default:
		state = servo.StateLocked
		_, err = clock.AdjFreqPPB(unix.CLOCK_REALTIME, clampPPB(offsetNs, c.cfg.MaxFreqPPB))
	}

	if err == nil {
		c.cfg.FirstUpdate = false
		if serr := clock.SetSync(); serr != nil {
			log.WithError(serr).Warn("systime: failed to mark clock synchronized")
		}
	}

	return state, err
}

// clampPPB converts a one-shot offset into a bounded per-second frequency
// correction: apply the whole offset over one second, capped to maxFreqPPB.
func clampPPB(offsetNs int64, maxFreqPPB float64) float64 {
	ppb := float64(offsetNs)
	if ppb > maxFreqPPB {
		return maxFreqPPB
	}
	if ppb < -maxFreqPPB {
		return -maxFreqPPB
	}
	return ppb
}
