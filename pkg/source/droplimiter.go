/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package source

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// dropLimiter implements drop-mode sampling (spec §4.1 "start_dropping
// (ratio)") with golang.org/x/time/rate: a ratio of 1/N is modeled as a
// limiter admitting one event per N milliseconds, with a burst of 1. The
// admitted fraction is 1/N only while events arrive at one per
// millisecond; it is not a count of events seen. This is a userspace
// approximation of what the real kernel driver does for a live capture.
// Dropping-mode ops stay a no-op on trace files (spec §4.1); cmd/inspect's
// replay-drop flag builds its own rate.Limiter at the CLI layer to
// simulate drops on a replayed trace without changing that invariant.
type dropLimiter struct {
	lim *rate.Limiter
	n   int
}

func newDropLimiter(ratio float64) (*dropLimiter, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, errors.Errorf("drop ratio must be in (0,1], got %f", ratio)
	}
	n := int(1 / ratio)
	if n < 1 {
		n = 1
	}
	// One token refilled every n events' worth of wall-clock time,
	// burst of 1: over a steady event rate this admits roughly 1 in n.
	return &dropLimiter{lim: rate.NewLimiter(rate.Every(time.Duration(n)*time.Millisecond), 1), n: n}, nil
}

// allow reports whether the current event should be admitted (not
// dropped).
func (l *dropLimiter) allow() bool {
	return l.lim.Allow()
}
