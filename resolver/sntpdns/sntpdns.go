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

// Package sntpdns implements the default sntp.DNSResolver over net.Resolver,
// returning the first IPv4 address a name resolves to, in host byte order.
package sntpdns

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chronos-io/coresntp/sntp"
)

// Resolver is the default sntp.DNSResolver.
type Resolver struct {
	// Timeout bounds each lookup; zero means no timeout.
	Timeout time.Duration
}

// New returns a Resolver with a sensible default lookup timeout.
func New() *Resolver {
	return &Resolver{Timeout: 5 * time.Second}
}

// ResolveDNS implements sntp.DNSResolver.
func (r *Resolver) ResolveDNS(server sntp.ServerInfo) (uint32, bool) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", server.Name)
	if err != nil || len(ips) == 0 {
		log.WithError(err).WithField("server", server.Name).Warn("sntpdns: lookup failed")
		return 0, false
	}

	v4 := ips[0].To4()
	if v4 == nil {
		return 0, false
	}

	return binary.BigEndian.Uint32(v4), true
}
