package transform

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

// Containers is the container list view model.
type Containers struct {
	Items   []Container `json:"items"`
	Running int         `json:"running"`
	Total   int         `json:"total"`
}

// Container describes one container as reported by the backend.
type Container struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	Age         string    `json:"age"`
	Ports       []string  `json:"ports"`
	URL         string    `json:"url"`
}

// ContainersTransformer builds Containers view models from an array of
//
//	{"id": "grafana", "name": "Grafana", "status": "running",
//	 "image": "grafana/grafana:latest", "created": "2023-04-15T10:30:00Z",
//	 "ports": ["3000:3000"], "url": "http://localhost:3000/grafana"}
//
// Every item needs an id. A missing name falls back to the id, a missing
// status to "unknown" and a missing created time leaves Age empty.
type ContainersTransformer struct {
	// Path locates the array; empty means the payload root.
	Path string
}

// Transform implements Transformer.
func (c *ContainersTransformer) Transform(p fetch.Payload) (Containers, error) {
	field := c.Path
	list := gjson.ParseBytes(p.Body)
	if field != "" {
		list = gjson.GetBytes(p.Body, field)
	} else {
		field = "@this"
	}
	if !present(list) {
		return Containers{}, missingField("containers", field)
	}
	if !list.IsArray() {
		return Containers{}, invalidField("containers", field, "expected array")
	}

	items := list.Array()
	vm := Containers{Items: make([]Container, 0, len(items)), Total: len(items)}
	for i, item := range items {
		id := item.Get("id").String()
		if id == "" {
			return Containers{}, missingField("containers", fmt.Sprintf("%s.%d.id", field, i))
		}

		ct := Container{
			ID:          id,
			Name:        optionalString(item.Get("name"), id),
			Description: item.Get("description").String(),
			Status:      optionalString(item.Get("status"), "unknown"),
			Image:       item.Get("image").String(),
			URL:         item.Get("url").String(),
			Ports:       []string{},
		}
		if created := item.Get("created"); present(created) {
			if t, err := parseTimestamp(created, ""); err == nil {
				ct.CreatedAt = t
				ct.Age = RelativeTime(t, p.FetchedAt)
			}
		}
		for _, port := range item.Get("ports").Array() {
			ct.Ports = append(ct.Ports, port.String())
		}
		if ct.Status == "running" {
			vm.Running++
		}
		vm.Items = append(vm.Items, ct)
	}

	return vm, nil
}
