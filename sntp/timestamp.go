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
	"math"

	wire "github.com/chronos-io/coresntp/protocol/sntp"
)

// FractionsPerMicrosecond maps NTP fractional units (2^-32s) to microseconds.
const FractionsPerMicrosecond = 4295

// eraLength is the span, in seconds, of one NTP era: 2^32 seconds.
const eraLength = int64(1) << 32

// eraOverflowThreshold is the magnitude (in seconds) beyond which a single
// era-adjusted first-order difference is considered outside the ~34-year
// window the original coreSNTP library's overflow check guards against
// (CLOCK_OFFSET_FIRST_ORDER_DIFF_OVERFLOW_BITS_MASK in
// original_source/source/core_sntp_serializer.c masks the top two bits of a
// 32-bit magnitude, i.e. a threshold of 2^30).
const eraOverflowThreshold = int64(1) << 30

// eraAmbiguousMagnitude is the single point at which the three era
// candidates tie and the direction (server-ahead vs client-ahead) cannot be
// disambiguated.
const eraAmbiguousMagnitude = int64(1) << 31

// ClockOffsetOverflowValue is the sentinel written to ResponseData.ClockOffsetSec
// when the offset cannot be computed because the system clock is too far
// from the server's.
const ClockOffsetOverflowValue = int32(math.MaxInt32)

// eraDiff computes the era-safe signed difference (a - b) of two NTP second
// counters, selecting whichever of the three candidate interpretations
// {a-b, a+2^32-b, a-(2^32+b)} has the smallest magnitude. This is the
// "era-adjusted difference" of spec section 4.1: it picks the era
// relationship (same era, server ahead by one era, client ahead by one era)
// that yields the shortest signed distance.
//
// overflow34y reports whether the chosen candidate's magnitude exceeds the
// ~34-year threshold used to decide whether a clock-offset computation built
// from two such diffs should be trusted.
func eraDiff(a, b uint32) (diff int64, overflow34y bool) {
	plain := int64(a) - int64(b)
	candidates := [3]int64{
		plain,
		plain + eraLength,
		plain - eraLength,
	}

	best := candidates[0]
	bestAbs := absInt64(best)
	for _, c := range candidates[1:] {
		if absInt64(c) < bestAbs {
			best = c
			bestAbs = absInt64(c)
		}
	}

	if bestAbs == eraAmbiguousMagnitude {
		// The era relationship cannot be disambiguated; per spec.md this is
		// a documented one-second inaccuracy at the boundary, not a fatal
		// error for this single difference.
		best = math.MaxInt32
	}

	return best, bestAbs > eraOverflowThreshold
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// elapsedMs returns the elapsed time, in milliseconds, between older and
// current, using era-safe second arithmetic. This is used by the client
// engine's retry/deadline accounting so that a retry window spanning the
// 2036-02-07 era rollover is still measured correctly.
func elapsedMs(current, older wire.Timestamp) uint32 {
	secDiff, _ := eraDiff(current.Seconds, older.Seconds)
	ms := secDiff * 1000

	if current.Fractions >= older.Fractions {
		ms += int64((current.Fractions - older.Fractions) / (FractionsPerMicrosecond * 1000))
	} else {
		ms -= int64((older.Fractions - current.Fractions) / (FractionsPerMicrosecond * 1000))
	}

	if ms < 0 {
		return 0
	}
	return uint32(ms)
}

// computeClockOffset implements the on-wire clock-offset algorithm of
// RFC 5905 Section 8 / spec.md section 4.1:
//
//	offset = ((T2 - T1) + (T3 - T4)) / 2
//
// using era-safe differencing for each term. If both first-order
// differences individually exceed the ~34-year overflow threshold, the
// system clock and server clock cannot be reconciled and the function
// returns ClockOffsetOverflow with the sentinel offset value.
func computeClockOffset(t1, t2, t3, t4 wire.Timestamp) (int32, Status) {
	sendDiff, sendOverflow := eraDiff(t2.Seconds, t1.Seconds)
	recvDiff, recvOverflow := eraDiff(t3.Seconds, t4.Seconds)

	if sendOverflow && recvOverflow {
		return ClockOffsetOverflowValue, ClockOffsetOverflow
	}

	offset := (sendDiff + recvDiff) / 2
	if offset > math.MaxInt32 || offset < math.MinInt32 {
		return ClockOffsetOverflowValue, ClockOffsetOverflow
	}

	return int32(offset), Success
}

// pollIntervalBudgetFactor accounts for the fact that both the client's and
// the server's clocks drift during a polling interval (factor of 2), and
// that the interval must keep drift within the desired accuracy at its
// midpoint to leave margin until the next poll (another factor of 2).
const pollIntervalBudgetFactor = 4

// CalculatePollInterval computes the recommended polling interval, in
// seconds, given the system clock's frequency tolerance (in PPM, i.e. Hz
// per MHz) and the desired time accuracy in milliseconds. It returns the
// largest power of two that does not exceed the exact interval
// (desiredAccuracyMs * 1000 * pollIntervalBudgetFactor / clockFreqTolerancePPM).
func CalculatePollInterval(clockFreqTolerancePPM, desiredAccuracyMs uint32, outSeconds *uint32) Status {
	if clockFreqTolerancePPM == 0 || desiredAccuracyMs == 0 || outSeconds == nil {
		return ErrorBadParameter
	}

	exactSeconds := (uint64(desiredAccuracyMs) * 1000 * pollIntervalBudgetFactor) / uint64(clockFreqTolerancePPM)
	if exactSeconds < 1 {
		return ZeroPollInterval
	}

	exponent := 0
	for (uint64(1) << uint(exponent+1)) <= exactSeconds {
		exponent++
	}

	*outSeconds = uint32(1) << uint(exponent)
	return Success
}

// sntpTimeAtUnixEpochSecs is the NTP representation of the Unix epoch
// (1970-01-01T00:00:00Z).
const sntpTimeAtUnixEpochSecs = uint32(2208988800)

// sntpTimeAtLargestUnixTimeSecs is the NTP representation, after era-1
// wraparound, of the largest time representable in a signed 32-bit Unix
// timestamp (2038-01-19T03:14:07Z).
const sntpTimeAtLargestUnixTimeSecs = uint32(61505151)

// ConvertToUnixTime converts an SNTP timestamp to Unix time, supporting the
// range from the Unix epoch through the signed-32-bit Unix time overflow
// point (2038-01-19T03:14:07Z). In NTP seconds space this is the union of
// two disjoint ranges spanning the era-0/era-1 boundary.
func ConvertToUnixTime(t wire.Timestamp, outSecs, outMicrosecs *uint32) Status {
	if outSecs == nil || outMicrosecs == nil {
		return ErrorBadParameter
	}

	inEraZeroRange := t.Seconds >= sntpTimeAtUnixEpochSecs
	inEraOneRange := t.Seconds <= sntpTimeAtLargestUnixTimeSecs

	if !inEraZeroRange && !inEraOneRange {
		return ErrorTimeNotSupported
	}

	if inEraZeroRange {
		*outSecs = t.Seconds - sntpTimeAtUnixEpochSecs
	} else {
		// Era-1 timestamp: seconds already wrapped past 2^32, so the Unix
		// time is the distance from era-0's Unix-epoch offset past the wrap.
		*outSecs = uint32(uint64(t.Seconds) + (uint64(1) << 32) - uint64(sntpTimeAtUnixEpochSecs))
	}

	*outMicrosecs = t.Fractions / FractionsPerMicrosecond
	return Success
}
