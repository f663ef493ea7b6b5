package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTransformer(t *testing.T) {
	p := payload(`{
		"cpu": {"usage": 32, "cores": 8, "temperature": 45},
		"memory": {"used": 8.2, "total": 16, "usage": 45},
		"disk": {"used": 230, "total": 512},
		"containers": {"active": 8, "total": 10, "status": [
			{"id": "grafana", "status": "running"},
			{"id": "wireguard"},
			{"status": "running"}
		]}
	}`)

	vm, err := (&MetricsTransformer{Node: "master-node"}).Transform(p)
	require.NoError(t, err)

	assert.Equal(t, "master-node", vm.Node)
	assert.Equal(t, CPU{Usage: 32, Cores: 8, TempF: 113}, vm.CPU)
	assert.Equal(t, Gauge{Usage: 45, Used: 8.2, Total: 16}, vm.Memory)
	assert.Equal(t, 44.9, vm.Disk.Usage, "derived from used/total")
	assert.Equal(t, 8, vm.Containers.Active)
	assert.Equal(t, 10, vm.Containers.Total)
	assert.Equal(t, []ContainerStatus{
		{ID: "grafana", Status: "running"},
		{ID: "wireguard", Status: "unknown"},
	}, vm.Containers.Statuses)
	assert.Equal(t, HealthHealthy, vm.Health)
}

func TestMetricsTransformer_Health(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"healthy", `{"cpu": {"usage": 10}, "memory": {"usage": 20}, "disk": {"usage": 30}}`, HealthHealthy},
		{"warning", `{"cpu": {"usage": 10}, "memory": {"usage": 80}, "disk": {"usage": 30}}`, HealthWarning},
		{"critical", `{"cpu": {"usage": 95}, "memory": {"usage": 20}, "disk": {"usage": 30}}`, HealthCritical},
		{"payload status wins", `{"cpu": {"usage": 95}, "memory": {"usage": 20}, "disk": {"usage": 30}, "status": "warning"}`, HealthWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := (&MetricsTransformer{}).Transform(payload(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, vm.Health)
		})
	}
}

func TestMetricsTransformer_OptionalDefaults(t *testing.T) {
	vm, err := (&MetricsTransformer{}).Transform(payload(`{"cpu": {"usage": 1}, "memory": {"usage": 2}, "disk": {"usage": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, "default", vm.Node)
	assert.Equal(t, TemperatureUnavailable, vm.CPU.TempF)
	assert.Equal(t, 0, vm.CPU.Cores)
	assert.Equal(t, ContainerCounts{Statuses: []ContainerStatus{}}, vm.Containers)
}

func TestMetricsTransformer_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no cpu", `{"memory": {"usage": 2}, "disk": {"usage": 3}}`, "cpu.usage"},
		{"no memory usage", `{"cpu": {"usage": 1}, "memory": {"total": 16}, "disk": {"usage": 3}}`, "memory.usage"},
		{"zero disk total", `{"cpu": {"usage": 1}, "memory": {"usage": 2}, "disk": {"used": 1, "total": 0}}`, "disk.usage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&MetricsTransformer{}).Transform(payload(tt.body))
			var te *Error
			require.True(t, errors.As(err, &te), "expected *transform.Error, got %v", err)
			assert.Equal(t, tt.field, te.Field)
		})
	}
}
