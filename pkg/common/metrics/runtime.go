// Copyright (c) 2026 The Fuzzfleet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
)

// gcPauseBuffer is the size of runtime.MemStats.PauseNs. Pause stats
// further back than this are gone.
const gcPauseBuffer = uint32(256)

// RuntimeCollector periodically emits Go runtime gauges (goroutines,
// heap, GC pauses) under a scope.
type RuntimeCollector struct {
	interval time.Duration
	quit     chan struct{}

	numGoroutines tally.Gauge
	goMaxProcs    tally.Gauge
	memAllocated  tally.Gauge
	memHeap       tally.Gauge
	memHeapIdle   tally.Gauge
	memHeapInuse  tally.Gauge
	memStack      tally.Gauge
	numGC         tally.Counter
	gcPause       tally.Timer
	lastNumGC     uint32
}

// StartRuntimeCollector begins emitting runtime metrics under the given
// scope at the given interval, returning a stop function.
func StartRuntimeCollector(scope tally.Scope, interval time.Duration) func() {
	c := newRuntimeCollector(scope, interval)
	go c.run()
	return c.stop
}

func newRuntimeCollector(scope tally.Scope, interval time.Duration) *RuntimeCollector {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return &RuntimeCollector{
		interval:      interval,
		quit:          make(chan struct{}),
		numGoroutines: scope.Gauge("num_goroutines"),
		goMaxProcs:    scope.Gauge("gomaxprocs"),
		memAllocated:  scope.Gauge("memory_allocated"),
		memHeap:       scope.Gauge("memory_heap"),
		memHeapIdle:   scope.Gauge("memory_heapidle"),
		memHeapInuse:  scope.Gauge("memory_heapinuse"),
		memStack:      scope.Gauge("memory_stack"),
		numGC:         scope.Counter("memory_num_gc"),
		gcPause:       scope.Timer("memory_gc_pause_ms"),
		lastNumGC:     memStats.NumGC,
	}
}

func (c *RuntimeCollector) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.generate()
		case <-c.quit:
			return
		}
	}
}

func (c *RuntimeCollector) generate() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.numGoroutines.Update(float64(runtime.NumGoroutine()))
	c.goMaxProcs.Update(float64(runtime.GOMAXPROCS(0)))
	c.memAllocated.Update(float64(memStats.Alloc))
	c.memHeap.Update(float64(memStats.HeapAlloc))
	c.memHeapIdle.Update(float64(memStats.HeapIdle))
	c.memHeapInuse.Update(float64(memStats.HeapInuse))
	c.memStack.Update(float64(memStats.StackInuse))

	// NumGC only ever grows, so the delta is the number of cycles since
	// the last tick.
	num := memStats.NumGC
	lastNum := atomic.SwapUint32(&c.lastNumGC, num)
	if delta := num - lastNum; delta > 0 {
		c.numGC.Inc(int64(delta))
		if delta >= gcPauseBuffer {
			lastNum = num - gcPauseBuffer
		}
		for i := lastNum; i != num; i++ {
			c.gcPause.Record(time.Duration(memStats.PauseNs[i%256]))
		}
	}
}

func (c *RuntimeCollector) stop() {
	close(c.quit)
}
