package main

import (
	"github.com/brandoz2255/k8s-dashboard/pkg/transform"
)

// Fallback view models are served until a widget's first successful fetch.
// They match the placeholder readings the dashboard has always shown while
// its backend is unreachable.

func fallbackWeather(location string) transform.Weather {
	return transform.Weather{
		Location:      location,
		Temp:          72,
		TempC:         22.2,
		FeelsLike:     72,
		Humidity:      transform.HumidityUnavailable,
		WindMph:       5,
		WindDirection: transform.Cardinal(225),
		WindDegrees:   225,
		UVIndex:       transform.UVUnavailable,
		Condition:     "Mainly clear",
		Source:        "fallback",
		Forecast:      []transform.DailyForecast{},
	}
}

func fallbackFeed() transform.Feed {
	return transform.Feed{Posts: []transform.Post{}, Categories: []string{}, Trending: []transform.Topic{}}
}

func fallbackMetrics(node string) transform.Metrics {
	return transform.Metrics{
		Node:   node,
		CPU:    transform.CPU{Usage: 32, Cores: 8, TempF: transform.ToFahrenheit(45)},
		Memory: transform.Gauge{Usage: 45, Used: 8.2, Total: 16},
		Disk:   transform.Gauge{Usage: 28, Used: 230, Total: 512},
		Containers: transform.ContainerCounts{
			Active:   8,
			Total:    10,
			Statuses: []transform.ContainerStatus{},
		},
		Health: transform.HealthHealthy,
	}
}

func fallbackContainers() transform.Containers {
	items := []transform.Container{
		{
			ID:          "grafana",
			Name:        "Grafana",
			Description: "Monitoring and observability platform",
			Status:      "running",
			Image:       "grafana/grafana:latest",
			Ports:       []string{"3000:3000"},
			URL:         "http://localhost:3000/grafana",
		},
		{
			ID:          "wireguard",
			Name:        "Wireguard",
			Description: "VPN server for secure connections",
			Status:      "running",
			Image:       "linuxserver/wireguard:latest",
			Ports:       []string{"51820:51820/udp"},
			URL:         "http://localhost:3000/wireguard",
		},
		{
			ID:          "bitwarden",
			Name:        "Bitwarden",
			Description: "Password manager",
			Status:      "running",
			Image:       "vaultwarden/server:latest",
			Ports:       []string{"8080:80"},
			URL:         "http://localhost:3000/bitwarden",
		},
		{
			ID:          "minecraft",
			Name:        "Minecraft Server",
			Description: "Game server",
			Status:      "stopped",
			Image:       "itzg/minecraft-server:latest",
			Ports:       []string{"25565:25565"},
			URL:         "http://localhost:3000/minecraft",
		},
	}
	return transform.Containers{Items: items, Running: 3, Total: len(items)}
}

func fallbackSeries(metric string) transform.Series {
	return transform.Series{Metric: metric, Points: []transform.Point{}}
}
