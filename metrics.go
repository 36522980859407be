// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"strconv"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricCoreAcceptCount    = []string{"asyncnet", "core", "accept", "count"}
	MetricCoreRejectCount    = []string{"asyncnet", "core", "accept", "rejected", "count"}
	MetricCoreConnectCount   = []string{"asyncnet", "core", "connect", "count"}
	MetricCoreLeaveCount     = []string{"asyncnet", "core", "leave", "count"}
	MetricCoreInBytes        = []string{"asyncnet", "core", "in", "bytes"}
	MetricCoreOutBytes       = []string{"asyncnet", "core", "out", "bytes"}
	MetricCoreFrameErrCount  = []string{"asyncnet", "core", "frame", "error", "count"}
	MetricCorePushDropCount  = []string{"asyncnet", "core", "push", "dropped", "count"}
	MetricCoreEventQueueSize = []string{"asyncnet", "core", "event", "queue", "size"}
)

const (
	MLabelCode = "code"
	MLabelMode = "mode"
)

func codeLabel(code int) metrics.Label {
	return metrics.Label{Name: MLabelCode, Value: strconv.Itoa(code)}
}

func modeLabel(m Mode) metrics.Label {
	return metrics.Label{Name: MLabelMode, Value: m.String()}
}
