// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "go.uber.org/zap"

// logger receives pool lifecycle events: block allocation, block allocation
// failure, and pool release. It defaults to a no-op logger so the package
// stays silent unless a caller opts in via SetLogger.
var logger = zap.NewNop()

// SetLogger installs l as the package-level logger. Passing nil restores the
// no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
