package jshost

import (
	"errors"
	"time"

	"github.com/yejune/go-jshost/internal/jsruntime"
)

// ConsoleLine is one line written by a script through console.
type ConsoleLine struct {
	Level string    `json:"level"`
	Line  string    `json:"line"`
	Time  time.Time `json:"time" ts_type:"string"`
}

// RunReport describes one script run.
type RunReport struct {
	Path        string        `json:"path"`
	Engine      string        `json:"engine"`
	Build       string        `json:"build"`
	Kind        string        `json:"kind"`
	Result      string        `json:"result"`
	ResultType  string        `json:"resultType"`
	CompileCost time.Duration `json:"compileCostNs"`
	RunCost     time.Duration `json:"runCostNs"`
	JobsDrained int           `json:"jobsDrained"`
	CacheHit    bool          `json:"cacheHit"`
	Console     []ConsoleLine `json:"console"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	Stack       string        `json:"stack,omitempty"`
}

func (r *RunReport) setResult(v jsruntime.Value) {
	r.Result = v.String()
	r.ResultType = v.Kind().String()
}

func (r *RunReport) setError(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	var e *jsruntime.Error
	if errors.As(err, &e) {
		r.ErrorKind = string(e.Kind)
		r.Error = e.Message
		r.Stack = e.Stack
	}
}
