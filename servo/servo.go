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

// Package servo describes the decision a caller makes about how to apply a
// reported clock offset: a hard step for a large first correction, or a
// bounded frequency slew once the clock is already close. The core SNTP
// library never disciplines the clock itself; systime.Corrector.Apply uses State to
// decide between clock.Step and clock.AdjFreqPPB.
package servo

// State is the outcome of a single offset-application decision.
type State uint8

// States a single offset application can resolve to.
const (
	StateInit   State = 0
	StateJump   State = 1
	StateLocked State = 2
	StateFilter State = 3
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	case StateFilter:
		return "FILTER"
	}
	return "UNSUPPORTED"
}

// Config holds the thresholds systime.Corrector.Apply uses to choose between a step
// and a slew.
type Config struct {
	// FirstStepThreshold is the largest offset, in nanoseconds, for which
	// the very first correction slews rather than steps.
	FirstStepThreshold int64
	// StepThreshold is the largest offset, in nanoseconds, any subsequent
	// correction slews rather than steps.
	StepThreshold int64
	// MaxFreqPPB bounds the frequency adjustment a slew may request.
	MaxFreqPPB float64
	// FirstUpdate is true until the first offset has been applied.
	FirstUpdate bool
}

// DefaultConfig returns the thresholds used when a driver does not override
// them: step the clock on the first correction only if the offset exceeds
// 20us, never step on any correction after that, slew bounded to
// 900,000,000 PPB.
func DefaultConfig() Config {
	return Config{
		FirstStepThreshold: 20000,
		StepThreshold:      0,
		MaxFreqPPB:         900000000,
		FirstUpdate:        true,
	}
}

// Decide reports which State applying offsetNs should resolve to. A zero
// threshold means "never step": FirstStepThreshold==0 slews even the first
// correction, and StepThreshold==0 slews every correction after it.
func (c Config) Decide(offsetNs int64) State {
	threshold := c.StepThreshold
	if c.FirstUpdate {
		threshold = c.FirstStepThreshold
	}

	abs := offsetNs
	if abs < 0 {
		abs = -abs
	}

	if threshold > 0 && abs > threshold {
		return StateJump
	}
	return StateLocked
}
