package metrics2

import (
	"runtime"
	"strings"
	"time"
)

const (
	measurementTimer     = "timer"
	measurementFuncTimer = "func_timer"
)

// Timer reports a single duration, in seconds, when Stop is called.
type Timer interface {
	// Start resets the begin time of the timer.
	Start()
	// Stop reports the time elapsed since Start and returns it.
	Stop() time.Duration
}

type timer struct {
	begin   time.Time
	summary Float64SummaryMetric
}

func newTimer(c Client, name string, tags ...map[string]string) Timer {
	t := map[string]string{"name": name}
	for _, tag := range tags {
		for k, v := range tag {
			t[k] = v
		}
	}
	return &timer{
		begin:   time.Now(),
		summary: c.GetFloat64SummaryMetric(measurementTimer, t),
	}
}

// Timers of different label sets cannot share a Prometheus name, so function
// timers get their own measurement.
func newFuncTimer(c Client, pkg, fn string) Timer {
	return &timer{
		begin:   time.Now(),
		summary: c.GetFloat64SummaryMetric(measurementFuncTimer, map[string]string{"package": pkg, "func": fn}),
	}
}

func (t *timer) Start() {
	t.begin = time.Now()
}

func (t *timer) Stop() time.Duration {
	elapsed := time.Since(t.begin)
	t.summary.Observe(elapsed.Seconds())
	return elapsed
}

// FuncTimer is specifically intended for measuring the duration of functions.
// It uses the default client.
//
// The standard way to use FuncTimer is at the top of the func you
// want to measure:
//
//	func myfunc() {
//	   defer metrics2.FuncTimer().Stop()
//	   ...
//	}
func FuncTimer() Timer {
	pc, _, _, _ := runtime.Caller(1)
	fn := "unknown"
	pkg := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		name := f.Name()
		// The package path may itself contain dots; split on the last slash
		// first.
		slash := strings.LastIndex(name, "/")
		if dot := strings.Index(name[slash+1:], "."); dot >= 0 {
			pkg = name[:slash+1+dot]
			fn = name[slash+1+dot+1:]
		}
	}
	return newFuncTimer(GetDefaultClient(), pkg, fn)
}
