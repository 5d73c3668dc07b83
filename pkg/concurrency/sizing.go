package concurrency

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// Source tells where a worker count came from.
type Source string

const (
	SourceConfigured Source = "configured"
	SourceDetected   Source = "auto_detect"
)

// Sizing is the worker pool size chosen for this process.
type Sizing struct {
	Workers       int
	EffectiveCPUs int
	IsKubernetes  bool
	Source        Source
}

func (s Sizing) String() string {
	return fmt.Sprintf("Sizing{Workers: %d, CPUs: %d, IsK8s: %t, Source: %s}",
		s.Workers, s.EffectiveCPUs, s.IsKubernetes, s.Source)
}

// SetMaxProcs sets GOMAXPROCS from the container CPU quota. Call it before
// DetectSizing. The returned func restores the previous value.
func SetMaxProcs(logger *zap.Logger) func() {
	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf))
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS from the CPU quota", zap.Error(err))
		return func() {}
	}
	logger.Debug("GOMAXPROCS set", zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))
	return undo
}

// DetectSizing returns configured when it is positive. Otherwise the worker
// count follows the effective CPUs: one per CPU (at least 2) in Kubernetes,
// where imports share the node, and two per CPU (at least 4) elsewhere.
func DetectSizing(configured int) Sizing {
	s := Sizing{
		EffectiveCPUs: runtime.GOMAXPROCS(0),
		IsKubernetes:  isKubernetes(),
	}
	if configured > 0 {
		s.Workers = configured
		s.Source = SourceConfigured
		return s
	}
	s.Workers = defaultWorkers(s.IsKubernetes, s.EffectiveCPUs)
	s.Source = SourceDetected
	return s
}

// Kubernetes sets this variable in every container.
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func defaultWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 2)
	}
	return max(cpus*2, 4)
}
