// Package estimate gives a rough cost and duration for the photos a
// library still needs captioned
package estimate

import (
	"sort"
	"time"
)

// Rate is the approximate price and latency of captioning one photo
type Rate struct {
	// Input and Output are USD per image
	Input  float64
	Output float64
	// Seconds is the wall time of one request
	Seconds float64
}

// DefaultRate is used for models missing from Rates
var DefaultRate = Rate{Input: 0.0002, Output: 0.00006, Seconds: 1.0}

// Rates holds per-model figures
var Rates = map[string]Rate{
	"gpt-4o-mini":      {Input: 0.00015, Output: 0.00005, Seconds: 0.8},
	"gpt-4o":           {Input: 0.00032, Output: 0.00012, Seconds: 1.0},
	"gemini-1.5-flash": {Input: 0.00008, Output: 0.00003, Seconds: 0.5},
	"gemini-2.0-flash": {Input: 0.00012, Output: 0.00005, Seconds: 0.6},
	"claude-haiku-4-5": {Input: 0.0012, Output: 0.0004, Seconds: 1.0},
}

// RateFor returns the rate of model and whether it is known
func RateFor(model string) (Rate, bool) {
	r, ok := Rates[model]
	if !ok {
		return DefaultRate, false
	}
	return r, true
}

// Models lists the models with a known rate, sorted
func Models() []string {
	out := make([]string, 0, len(Rates))
	for m := range Rates {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Estimate is the projection for one library
type Estimate struct {
	Backend   string
	Model     string
	Total     int
	Done      int
	Remaining int
	Workers   int
	// KnownRate is false when DefaultRate was used
	KnownRate  bool
	InputCost  float64
	OutputCost float64
	Duration   time.Duration
}

// TotalCost is the input plus output cost
func (e Estimate) TotalCost() float64 {
	return e.InputCost + e.OutputCost
}

// Compute projects the cost of captioning total-done photos with workers
// requests in flight
func Compute(backend, model string, total, done, workers int) Estimate {
	if workers < 1 {
		workers = 1
	}
	remaining := total - done
	if remaining < 0 {
		remaining = 0
	}
	rate, known := RateFor(model)

	seconds := float64(remaining) * rate.Seconds / float64(workers)
	return Estimate{
		Backend:    backend,
		Model:      model,
		Total:      total,
		Done:       done,
		Remaining:  remaining,
		Workers:    workers,
		KnownRate:  known,
		InputCost:  float64(remaining) * rate.Input,
		OutputCost: float64(remaining) * rate.Output,
		Duration:   time.Duration(seconds * float64(time.Second)),
	}
}
