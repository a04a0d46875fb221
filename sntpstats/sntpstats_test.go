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

package sntpstats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/chronos-io/coresntp/sntp"
)

func TestObserveCycleIncrementsByStatus(t *testing.T) {
	c := NewCollector()
	c.ObserveCycle(sntp.Success)
	c.ObserveCycle(sntp.Success)
	c.ObserveCycle(sntp.ErrorResponseTimeout)

	require.Equal(t, float64(2), testutil.ToFloat64(c.cyclesTotal.WithLabelValues(sntp.Success.String())))
	require.Equal(t, float64(1), testutil.ToFloat64(c.cyclesTotal.WithLabelValues(sntp.ErrorResponseTimeout.String())))
}

func TestObserveOffsetSetsGauge(t *testing.T) {
	c := NewCollector()
	c.ObserveOffset(-3)
	require.Equal(t, float64(-3), testutil.ToFloat64(c.clockOffset))
}

func TestObserveServerCursorSetsGauge(t *testing.T) {
	c := NewCollector()
	c.ObserveServerCursor(2)
	require.Equal(t, float64(2), testutil.ToFloat64(c.serverCursor))
}
