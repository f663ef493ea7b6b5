package transform

import (
	"math"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// Health levels derived from resource usage.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// TemperatureUnavailable marks a CPU without a temperature reading.
const TemperatureUnavailable = -1

// Metrics is the system metrics widget view model. Usage values are percentages.
type Metrics struct {
	Node       string          `json:"node"`
	CPU        CPU             `json:"cpu"`
	Memory     Gauge           `json:"memory"`
	Disk       Gauge           `json:"disk"`
	Containers ContainerCounts `json:"containers"`
	Health     string          `json:"health"`
}

// CPU holds processor readings. TempF is TemperatureUnavailable when unknown.
type CPU struct {
	Usage float64 `json:"usage"`
	Cores int     `json:"cores"`
	TempF int     `json:"tempF"`
}

// Gauge is a capacity reading; Used and Total share a unit (GB in practice).
type Gauge struct {
	Usage float64 `json:"usage"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// ContainerCounts summarises container states on the node.
type ContainerCounts struct {
	Active   int               `json:"active"`
	Total    int               `json:"total"`
	Statuses []ContainerStatus `json:"statuses"`
}

// ContainerStatus is a single container's reported state.
type ContainerStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MetricsTransformer builds Metrics view models from
//
//	{"cpu": {"usage": 32, "cores": 8, "temperature": 45},
//	 "memory": {"used": 8.2, "total": 16, "usage": 45},
//	 "disk": {"used": 230, "total": 512, "usage": 28},
//	 "containers": {"active": 8, "total": 10, "status": [{"id": "grafana", "status": "running"}]}}
//
// cpu.usage is required. memory.usage and disk.usage are required unless
// used and total are both present, in which case usage is derived.
type MetricsTransformer struct {
	// Node labels the view model when the payload has no "node" field.
	Node string
	// WarnAt and CriticalAt are usage thresholds in percent (defaults 75 and 90).
	WarnAt     float64
	CriticalAt float64
}

// Transform implements Transformer.
func (m *MetricsTransformer) Transform(p fetch.Payload) (Metrics, error) {
	body := p.Body

	cpuUsage, err := requireNumber("metrics", body, "cpu.usage")
	if err != nil {
		return Metrics{}, err
	}
	memory, err := gauge(body, "memory")
	if err != nil {
		return Metrics{}, err
	}
	disk, err := gauge(body, "disk")
	if err != nil {
		return Metrics{}, err
	}

	vm := Metrics{
		Node: optionalString(gjson.GetBytes(body, "node"), m.Node),
		CPU: CPU{
			Usage: cpuUsage,
			Cores: int(optionalNumber(body, "cpu.cores", 0)),
			TempF: TemperatureUnavailable,
		},
		Memory: memory,
		Disk:   disk,
		Containers: ContainerCounts{
			Active:   int(optionalNumber(body, "containers.active", 0)),
			Total:    int(optionalNumber(body, "containers.total", 0)),
			Statuses: []ContainerStatus{},
		},
	}
	if vm.Node == "" {
		vm.Node = "default"
	}
	if t := gjson.GetBytes(body, "cpu.temperature"); present(t) && t.Type == gjson.Number {
		vm.CPU.TempF = ToFahrenheit(t.Float())
	}

	for _, s := range gjson.GetBytes(body, "containers.status").Array() {
		id := s.Get("id").String()
		if id == "" {
			continue
		}
		vm.Containers.Statuses = append(vm.Containers.Statuses, ContainerStatus{
			ID:     id,
			Status: optionalString(s.Get("status"), "unknown"),
		})
	}
	if vm.Containers.Total < vm.Containers.Active {
		vm.Containers.Total = vm.Containers.Active
	}

	vm.Health = optionalString(gjson.GetBytes(body, "status"), m.health(cpuUsage, memory.Usage, disk.Usage))
	return vm, nil
}

func (m *MetricsTransformer) health(usages ...float64) string {
	warn, critical := m.WarnAt, m.CriticalAt
	if warn <= 0 {
		warn = 75
	}
	if critical <= 0 {
		critical = 90
	}
	peak := 0.0
	for _, u := range usages {
		peak = math.Max(peak, u)
	}
	switch {
	case peak >= critical:
		return HealthCritical
	case peak >= warn:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// gauge reads {used,total,usage} under prefix. Usage is derived from
// used/total (one decimal place) when the payload omits it.
func gauge(body []byte, prefix string) (Gauge, error) {
	g := Gauge{
		Used:  optionalNumber(body, prefix+".used", 0),
		Total: optionalNumber(body, prefix+".total", 0),
	}
	usage := gjson.GetBytes(body, prefix+".usage")
	if present(usage) && usage.Type == gjson.Number {
		g.Usage = usage.Float()
		return g, nil
	}
	if g.Total > 0 && present(gjson.GetBytes(body, prefix+".used")) {
		g.Usage = math.Round(g.Used/g.Total*1000) / 10
		return g, nil
	}
	return Gauge{}, missingField("metrics", prefix+".usage")
}
