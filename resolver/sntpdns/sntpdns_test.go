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

package sntpdns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronos-io/coresntp/sntp"
)

func TestNewDefaultTimeout(t *testing.T) {
	r := New()
	require.Equal(t, 5*time.Second, r.Timeout)
}

// TestResolveDNSLiteralAddress exercises the resolver against a dotted-quad
// literal, which net.Resolver answers without touching the network.
func TestResolveDNSLiteralAddress(t *testing.T) {
	r := New()
	ip, ok := r.ResolveDNS(sntp.ServerInfo{Name: "127.0.0.1"})
	require.True(t, ok)
	require.Equal(t, uint32(0x7F000001), ip)
}
