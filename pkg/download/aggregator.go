package download

import "sync"

// aggregator records outcomes in the order they are reported.
type aggregator struct {
	mu      sync.Mutex
	errs    []Failure
	results []Result
}

func (a *aggregator) record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case o.Failure != nil:
		a.errs = append(a.errs, *o.Failure)
	case o.Result != nil:
		a.results = append(a.results, *o.Result)
	}
}

// collect returns the failures (nil when there are none) and the results.
func (a *aggregator) collect() ([]Failure, []Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	results := a.results
	if results == nil {
		results = []Result{}
	}
	if len(a.errs) == 0 {
		return nil, results
	}
	return a.errs, results
}
