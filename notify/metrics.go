// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"strconv"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricLoginCount   = []string{"asyncnet", "notify", "login", "count"}
	MetricDedupCount   = []string{"asyncnet", "notify", "dedup", "count"}
	MetricRetryCount   = []string{"asyncnet", "notify", "retry", "count"}
	MetricDataInCount  = []string{"asyncnet", "notify", "data", "in", "count"}
	MetricDataOutCount = []string{"asyncnet", "notify", "data", "out", "count"}
	MetricLinks        = []string{"asyncnet", "notify", "links"}
)

const MLabelResult = "result"

func resultLabel(result int) []metrics.Label {
	return []metrics.Label{{Name: MLabelResult, Value: strconv.Itoa(result)}}
}
