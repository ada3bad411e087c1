// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package segbuf_test

// raceEnabled is true when the race detector is active.
// The concurrent pool rent/return test runs fewer iterations in race mode
// because of the race detector's per-access overhead.
const raceEnabled = true
