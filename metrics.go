// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "github.com/prometheus/client_golang/prometheus"

var (
	metricBlocksCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "segbuf",
		Name:      "blocks_created_total",
		Help:      "SegmentedBufferBlocks allocated from the OS or managed heap.",
	})
	metricSegmentsRented = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "segbuf",
		Name:      "segments_rented_total",
		Help:      "Individual segments rented across every SegmentedBufferPool.",
	})
	metricSegmentsReturned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "segbuf",
		Name:      "segments_returned_total",
		Help:      "Individual segments returned or reduced across every SegmentedBufferPool.",
	})
	metricPoolReleases = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "segbuf",
		Name:      "pool_releases_total",
		Help:      "Times ReleaseMemoryBuffers swapped in a fresh process-wide pool.",
	})
)

// RegisterMetrics registers segbuf's Prometheus collectors with reg. Call it
// once at process startup, typically with prometheus.DefaultRegisterer;
// registering the same reg twice returns an AlreadyRegisteredError.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		metricBlocksCreated,
		metricSegmentsRented,
		metricSegmentsReturned,
		metricPoolReleases,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
