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

// Package sntpudp implements the default sntp.UDPTransport: a single UDP
// socket polled with a zero timeout before every send/receive attempt, so
// the engine's own retry loops see the tri-valued would-block/error/progress
// convention spec.md requires without the socket ever blocking the caller's
// goroutine.
package sntpudp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Transport is the default sntp.UDPTransport, backed by one unconnected
// IPv4 UDP socket.
type Transport struct {
	fd int
}

// New creates an unconnected UDP socket bound to an ephemeral local port.
// The socket itself is left in blocking mode; Send and Receive avoid
// blocking by polling it with a zero timeout first.
func New() (*Transport, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("sntpudp: socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: 0}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sntpudp: bind: %w", err)
	}

	return &Transport{fd: fd}, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return unix.Close(t.fd)
}

// pollReady performs the zero-timeout poll(2) the original POSIX example
// (example_sntp_client_posix.c) uses to avoid ever blocking in send/recv.
func pollReady(fd int, events int16) (ready bool, err error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Send implements sntp.UDPTransport. serverIP is in host byte order.
func (t *Transport) Send(serverIP uint32, serverPort uint16, buffer []byte) (int, error) {
	ready, err := pollReady(t.fd, unix.POLLOUT)
	if err != nil {
		return -1, err
	}
	if !ready {
		return 0, nil
	}

	addr := &unix.SockaddrInet4{Port: int(serverPort), Addr: ipv4ToBytes(serverIP)}
	if err := unix.Sendto(t.fd, buffer, 0, addr); err != nil {
		return -1, err
	}
	return len(buffer), nil
}

// Receive implements sntp.UDPTransport. serverIP/serverPort identify the
// expected sender but are not currently filtered against; the engine's own
// originate-timestamp echo check is the authoritative pairing defence.
func (t *Transport) Receive(serverIP uint32, serverPort uint16, buffer []byte) (int, error) {
	ready, err := pollReady(t.fd, unix.POLLIN)
	if err != nil {
		return -1, err
	}
	if !ready {
		return 0, nil
	}

	n, _, err := unix.Recvfrom(t.fd, buffer, 0)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// ipv4ToBytes renders a host-byte-order IPv4 address as the big-endian
// 4-byte form unix.SockaddrInet4 expects.
func ipv4ToBytes(ip uint32) [4]byte {
	return [4]byte{
		byte(ip >> 24),
		byte(ip >> 16),
		byte(ip >> 8),
		byte(ip),
	}
}
