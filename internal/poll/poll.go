// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package poll runs the fixed-cadence acquisition loop: it owns the
// device for the duration of polling, applies the failure policy and
// publishes samples to the shared slot.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/bno055"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// Device is the capability the loop needs from a sensor driver. The
// BNO055 driver satisfies it; tests use a stub and mock mode wraps the
// mock orientation source.
type Device interface {
	ReadOrientation() (orientation.Sample, error)
	Reinitialize() error
	Shutdown() error
}

// ErrDeviceLost is returned when the recovery routine itself failed:
// the device is gone and the caller should terminate loudly instead of
// polling a dead bus forever.
var ErrDeviceLost = errors.New("device lost: recovery failed")

// Stats are the aggregate counters the loop surfaces. Per-cycle errors
// stay inside the loop; only these counts leave it.
type Stats struct {
	Published  uint64 `json:"published"`
	Malformed  uint64 `json:"malformed"`
	BusErrors  uint64 `json:"bus_errors"`
	Recoveries uint64 `json:"recoveries"`
}

// Loop polls one device at a fixed period and publishes to one slot.
type Loop struct {
	dev       Device
	slot      *orientation.Latest
	period    time.Duration
	threshold int

	published  atomic.Uint64
	malformed  atomic.Uint64
	busErrors  atomic.Uint64
	recoveries atomic.Uint64

	// Clock indirection for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// New creates a loop. threshold is the number of consecutive bus
// failures that triggers the recovery routine.
func New(dev Device, slot *orientation.Latest, period time.Duration, threshold int) *Loop {
	return &Loop{
		dev:       dev,
		slot:      slot,
		period:    period,
		threshold: threshold,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// sleepCtx waits out d or returns early on cancellation, so shutdown
// latency never scales with the poll period.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run polls until ctx is cancelled or recovery is exhausted. On
// cancellation it finishes the current cycle, puts the device back in
// CONFIG mode and returns nil. Scheduling is drift-free: each wake
// time is the previous target plus the period, not "sleep then add",
// so timing skew does not accumulate over long runs.
func (l *Loop) Run(ctx context.Context) error {
	log.Infof("poll: starting acquisition loop, period %v, failure threshold %d", l.period, l.threshold)

	failures := 0
	next := l.now()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		default:
		}

		sample, err := l.dev.ReadOrientation()
		switch {
		case err == nil:
			l.slot.Set(sample)
			l.published.Add(1)
			failures = 0

		case errors.Is(err, bno055.ErrMalformedSample):
			// Transient: drop, log, keep the cadence. Not a failure
			// that needs recovery.
			l.malformed.Add(1)
			log.Debugf("poll: dropped sample: %v", err)

		default:
			failures++
			l.busErrors.Add(1)
			log.Warnf("poll: bus error (%d consecutive): %v", failures, err)
			if failures >= l.threshold {
				l.recoveries.Add(1)
				if rerr := l.dev.Reinitialize(); rerr != nil {
					log.Errorf("poll: recovery failed: %v", rerr)
					return fmt.Errorf("%w: %v", ErrDeviceLost, rerr)
				}
				log.Info("poll: device recovered")
				failures = 0
			}
		}

		next = next.Add(l.period)
		if wait := next.Sub(l.now()); wait > 0 {
			l.sleep(ctx, wait)
		} else {
			// A cycle overran its slot; realign rather than trying to
			// catch up with back-to-back reads.
			next = l.now()
		}
	}
}

// Stats returns a snapshot of the aggregate counters. Safe to call
// from any goroutine while the loop runs.
func (l *Loop) Stats() Stats {
	return Stats{
		Published:  l.published.Load(),
		Malformed:  l.malformed.Load(),
		BusErrors:  l.busErrors.Load(),
		Recoveries: l.recoveries.Load(),
	}
}

func (l *Loop) shutdown() error {
	log.Info("poll: shutting down, returning device to CONFIG mode")
	if err := l.dev.Shutdown(); err != nil {
		log.Warnf("poll: device shutdown: %v", err)
	}
	return nil
}
