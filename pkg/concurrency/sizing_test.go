package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestDetectSizing(t *testing.T) {
	cpus := runtime.GOMAXPROCS(0)

	t.Run("configured", func(t *testing.T) {
		s := DetectSizing(7)
		assert.Equal(t, 7, s.Workers)
		assert.Equal(t, SourceConfigured, s.Source)
		assert.Equal(t, cpus, s.EffectiveCPUs)
	})

	t.Run("bare metal", func(t *testing.T) {
		t.Setenv("KUBERNETES_SERVICE_HOST", "")
		s := DetectSizing(0)
		assert.False(t, s.IsKubernetes)
		assert.Equal(t, SourceDetected, s.Source)
		assert.Equal(t, max(cpus*2, 4), s.Workers)
	})

	t.Run("kubernetes", func(t *testing.T) {
		t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
		s := DetectSizing(-1)
		assert.True(t, s.IsKubernetes)
		assert.Equal(t, max(cpus, 2), s.Workers)
		assert.Contains(t, s.String(), "IsK8s: true")
	})
}

func TestDefaultWorkers(t *testing.T) {
	tests := []struct {
		name string
		k8s  bool
		cpus int
		want int
	}{
		{"single cpu", false, 1, 4},
		{"many cpus", false, 8, 16},
		{"k8s single cpu", true, 1, 2},
		{"k8s many cpus", true, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultWorkers(tt.k8s, tt.cpus))
		})
	}
}

func TestSetMaxProcs(t *testing.T) {
	before := runtime.GOMAXPROCS(0)
	undo := SetMaxProcs(zaptest.NewLogger(t))
	undo()
	assert.Equal(t, before, runtime.GOMAXPROCS(0))
}
