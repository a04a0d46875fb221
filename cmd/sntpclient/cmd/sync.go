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

package cmd

import (
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chronos-io/coresntp/leapsectz"
	wire "github.com/chronos-io/coresntp/protocol/sntp"
	"github.com/chronos-io/coresntp/resolver/sntpdns"
	"github.com/chronos-io/coresntp/sntp"
	"github.com/chronos-io/coresntp/sntp/sntpauth"
	"github.com/chronos-io/coresntp/sntpconfig"
	"github.com/chronos-io/coresntp/sntpstats"
	"github.com/chronos-io/coresntp/systime"
	"github.com/chronos-io/coresntp/transport/sntpudp"
)

var (
	okString   = color.GreenString("[ OK ]")
	warnString = color.YellowString("[WARN]")
	failString = color.RedString("[FAIL]")
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run repeated SNTP sync cycles against the configured servers",
	RunE:  runSync,
}

func init() {
	RootCmd.AddCommand(syncCmd)
}

func buildAuthCodec(cfg *sntpconfig.Config) (sntp.AuthCodec, error) {
	if len(cfg.AuthKeys) == 0 {
		return nil, nil
	}

	keys := make(map[uint32][]byte, len(cfg.AuthKeys))
	for _, k := range cfg.AuthKeys {
		raw, err := hex.DecodeString(k.Hex)
		if err != nil {
			return nil, err
		}
		keys[k.ID] = raw
	}

	return sntpauth.NewCodec(keys, cfg.CurrentAuthKeyID), nil
}

func statusGlyph(status sntp.Status) string {
	switch status {
	case sntp.Success:
		return okString
	case sntp.ClockOffsetOverflow, sntp.RejectedResponse, sntp.NoResponseReceived:
		return warnString
	default:
		return failString
	}
}

func runSync(_ *cobra.Command, _ []string) error {
	configureVerbosity()

	cfg, err := sntpconfig.ReadConfig(configPath)
	if err != nil {
		return err
	}

	servers := make([]sntp.ServerInfo, 0, len(cfg.Servers))
	for _, name := range cfg.Servers {
		servers = append(servers, sntp.ServerInfo{Name: name, Port: sntp.DefaultServerPort})
	}

	buffer := make([]byte, wire.PacketSizeBytes+64)

	transport, err := sntpudp.New()
	if err != nil {
		return err
	}
	defer transport.Close()

	corrector := systime.NewCorrector()
	collector := sntpstats.NewCollector()
	go collector.Serve(cfg.MetricsPort)

	auth, err := buildAuthCodec(cfg)
	if err != nil {
		return err
	}

	setTime := func(server sntp.ServerInfo, serverTime wire.Timestamp, offsetSec int32, leap wire.LeapIndicator) {
		collector.ObserveOffset(offsetSec)

		if leap != wire.LeapNone {
			if next, ok := leapsectz.NextLeapSecond(time.Now()); ok {
				log.WithField("next_leap_second", next).Warn("sntpclient: server announced upcoming leap second")
			}
		}

		state, err := corrector.Apply(offsetSec)
		if err != nil {
			log.WithError(err).WithField("server", server.Name).Error("sntpclient: failed to apply clock offset")
			return
		}
		log.WithFields(log.Fields{"server": server.Name, "offset_sec": offsetSec, "correction": state.String()}).Info("sntpclient: applied offset")
	}

	ctx, status := sntp.NewContext(servers, buffer, uint32(cfg.ResponseTimeout.Milliseconds()), sntpdns.New(), systime.NewSource(), setTime, transport, auth)
	if status != sntp.Success {
		log.Fatalf("sntpclient: failed to initialize context: %s", status)
	}

	var pollSeconds uint32
	if status := sntp.CalculatePollInterval(cfg.ClockFreqTolerancePPM, cfg.DesiredAccuracyMs, &pollSeconds); status != sntp.Success {
		log.Fatalf("sntpclient: failed to calculate poll interval: %s", status)
	}

	for {
		randomNumber := rand.Uint32()

		status := ctx.SendTimeRequest(randomNumber)
		if status == sntp.Success {
			status = pollUntilReceived(ctx, cfg.BlockTime)
		}
		collector.ObserveCycle(status)
		collector.ObserveServerCursor(ctx.ServerCursor())

		log.WithField("status", status.String()).Infof("%s sntpclient: sync cycle complete", statusGlyph(status))

		if status == sntp.ErrorChangeServer {
			return nil
		}

		time.Sleep(time.Duration(pollSeconds) * time.Second)
	}
}

// pollUntilReceived repeats ReceiveTimeResponse until it stops returning
// NoResponseReceived, honoring the hard responseTimeoutMs deadline that
// SendTimeRequest's companion recv call is ultimately bound by.
func pollUntilReceived(ctx *sntp.Context, blockTime time.Duration) sntp.Status {
	for {
		status := ctx.ReceiveTimeResponse(uint32(blockTime.Milliseconds()))
		if status != sntp.NoResponseReceived {
			return status
		}
	}
}
