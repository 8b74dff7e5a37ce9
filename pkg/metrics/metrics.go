/*
 * Copyright 2022 CECTC, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	CacheHit  = "hit"
	CacheMiss = "miss"
	CachePut  = "put"
)

var (
	RequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubrid",
		Subsystem: "request",
		Name:      "count",
		Help:      "broker request count",
	}, []string{"function", "status"})

	RequestTimer = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cubrid",
		Subsystem: "request",
		Name:      "timer",
		Help:      "broker request round trip in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"function"})

	ReconnectCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubrid",
		Subsystem: "connection",
		Name:      "reconnect_count",
		Help:      "broker (re)connect attempts per host",
	}, []string{"host", "status"})

	RetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubrid",
		Subsystem: "statement",
		Name:      "retry_count",
		Help:      "transparent statement retries",
	}, []string{"operation"})

	UnreachableHosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cubrid",
		Subsystem: "connection",
		Name:      "unreachable_hosts",
		Help:      "hosts currently excluded from failover",
	})

	BrokerUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cubrid",
		Subsystem: "monitor",
		Name:      "broker_up",
		Help:      "whether the broker answered the last ping",
	}, []string{"data_source", "host"})

	PingTimer = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cubrid",
		Subsystem: "monitor",
		Name:      "ping_timer",
		Help:      "broker ping round trip in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"host"})

	ResultCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubrid",
		Subsystem: "result_cache",
		Name:      "count",
		Help:      "client side result cache lookups and stores",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestTimer)
	prometheus.MustRegister(ReconnectCounter)
	prometheus.MustRegister(RetryCounter)
	prometheus.MustRegister(UnreachableHosts)
	prometheus.MustRegister(ResultCacheCounter)
	prometheus.MustRegister(BrokerUp)
	prometheus.MustRegister(PingTimer)
}
