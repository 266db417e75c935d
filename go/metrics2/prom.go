package metrics2

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"go.skia.org/revgraph/go/sklog"
)

var (
	// invalidChar is used to force metric and tag names to conform to Prometheus's restrictions.
	invalidChar = regexp.MustCompile("([^a-zA-Z0-9_:])")
)

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// promInt64 implements the Int64Metric interface.
type promInt64 struct {
	// i tracks the value of the gauge, because prometheus client lib doesn't
	// support get on Gauge values.
	i     int64
	gauge prometheus.Gauge
}

func (m *promInt64) Get() int64 {
	return atomic.LoadInt64(&m.i)
}

func (m *promInt64) Update(v int64) {
	atomic.StoreInt64(&m.i, v)
	m.gauge.Set(float64(v))
}

func (m *promInt64) add(delta int64) {
	v := atomic.AddInt64(&m.i, delta)
	m.gauge.Set(float64(v))
}

// promFloat64 implements the Float64Metric interface.
type promFloat64 struct {
	mutex sync.Mutex
	f     float64
	gauge prometheus.Gauge
}

func (m *promFloat64) Get() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.f
}

func (m *promFloat64) Update(v float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.f = v
	m.gauge.Set(v)
}

// promFloat64Summary implements the Float64SummaryMetric interface.
type promFloat64Summary struct {
	summary prometheus.Observer
}

func (m *promFloat64Summary) Observe(v float64) {
	m.summary.Observe(v)
}

// promCounter implements the Counter interface. It shares the gauge, and its
// stored value, with the Int64Metric of the same name and tags.
type promCounter struct {
	*promInt64
}

func (pc promCounter) Inc(i int64) {
	pc.add(i)
}

func (pc promCounter) Dec(i int64) {
	pc.add(-i)
}

func (pc promCounter) Reset() {
	pc.Update(0)
}

// promClient implements the Client interface.
type promClient struct {
	mutex sync.Mutex

	int64GaugeVecs map[string]*prometheus.GaugeVec
	int64Gauges    map[string]*promInt64

	float64GaugeVecs map[string]*prometheus.GaugeVec
	float64Gauges    map[string]*promFloat64

	float64SummaryVecs map[string]*prometheus.SummaryVec
	float64Summaries   map[string]*promFloat64Summary
}

func newPromClient() *promClient {
	return &promClient{
		int64GaugeVecs:     map[string]*prometheus.GaugeVec{},
		int64Gauges:        map[string]*promInt64{},
		float64GaugeVecs:   map[string]*prometheus.GaugeVec{},
		float64Gauges:      map[string]*promFloat64{},
		float64SummaryVecs: map[string]*prometheus.SummaryVec{},
		float64Summaries:   map[string]*promFloat64Summary{},
	}
}

// commonGet does a lot of the common work for each of the Get* funcs.
//
// It returns:
//
//	measurement - A clean measurement name.
//	cleanTags   - A clean set of tags.
//	keys        - A slice of the keys of cleanTags, sorted.
//	metricKey   - A name to uniquely identify the metric.
//	vecKey      - A name to uniquely identify the collection of metrics.
func commonGet(measurement string, tags ...map[string]string) (string, map[string]string, []string, string, string) {
	measurement = clean(measurement)

	cleanTags := map[string]string{}
	for _, t := range tags {
		for k, v := range t {
			cleanTags[clean(k)] = v
		}
	}
	keys := make([]string, 0, len(cleanTags))
	for k := range cleanTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keySrc := []string{measurement}
	for _, key := range keys {
		keySrc = append(keySrc, key, cleanTags[key])
	}
	return measurement, cleanTags, keys, strings.Join(keySrc, "-"), fmt.Sprintf("%s %v", measurement, keys)
}

func (p *promClient) gaugeVec(vecs map[string]*prometheus.GaugeVec, measurement, vecKey string, keys []string) *prometheus.GaugeVec {
	gaugeVec, ok := vecs[vecKey]
	if !ok {
		gaugeVec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: measurement,
				Help: measurement,
			},
			keys,
		)
		if err := prometheus.Register(gaugeVec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", measurement, err)
		}
		vecs[vecKey] = gaugeVec
	}
	return gaugeVec
}

func (p *promClient) GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return p.getInt64(name, tags...)
}

func (p *promClient) getInt64(name string, tags ...map[string]string) *promInt64 {
	measurement, cleanTags, keys, gaugeKey, gaugeVecKey := commonGet(name, tags...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if ret, ok := p.int64Gauges[gaugeKey]; ok {
		return ret
	}
	gaugeVec := p.gaugeVec(p.int64GaugeVecs, measurement, gaugeVecKey, keys)
	gauge, err := gaugeVec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get gauge: %s", err)
	}
	ret := &promInt64{
		gauge: gauge,
	}
	p.int64Gauges[gaugeKey] = ret
	return ret
}

func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	return promCounter{promInt64: p.getInt64(name, tags...)}
}

func (p *promClient) GetFloat64Metric(name string, tags ...map[string]string) Float64Metric {
	measurement, cleanTags, keys, gaugeKey, gaugeVecKey := commonGet(name, tags...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if ret, ok := p.float64Gauges[gaugeKey]; ok {
		return ret
	}
	gaugeVec := p.gaugeVec(p.float64GaugeVecs, measurement, gaugeVecKey, keys)
	gauge, err := gaugeVec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get gauge: %s", err)
	}
	ret := &promFloat64{
		gauge: gauge,
	}
	p.float64Gauges[gaugeKey] = ret
	return ret
}

func (p *promClient) GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	measurement, cleanTags, keys, summaryKey, summaryVecKey := commonGet(name, tags...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if ret, ok := p.float64Summaries[summaryKey]; ok {
		return ret
	}
	summaryVec, ok := p.float64SummaryVecs[summaryVecKey]
	if !ok {
		summaryVec = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       measurement,
				Help:       measurement,
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			keys,
		)
		if err := prometheus.Register(summaryVec); err != nil {
			sklog.Fatalf("Failed to register %q %v: %s", measurement, cleanTags, err)
		}
		p.float64SummaryVecs[summaryVecKey] = summaryVec
	}
	summary, err := summaryVec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get summary: %s", err)
	}
	ret := &promFloat64Summary{
		summary: summary,
	}
	p.float64Summaries[summaryKey] = ret
	return ret
}

func (p *promClient) NewTimer(name string, tags ...map[string]string) Timer {
	return newTimer(p, name, tags...)
}

// Validate that the concrete structs faithfully implement their respective interfaces.
var _ Int64Metric = (*promInt64)(nil)
var _ Float64Metric = (*promFloat64)(nil)
var _ Float64SummaryMetric = (*promFloat64Summary)(nil)
var _ Counter = promCounter{}
var _ Client = (*promClient)(nil)
