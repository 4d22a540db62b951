package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TempFiles exposes the live temp-file count at scrape time.
type TempFiles interface {
	Active() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	temp     TempFiles
	provider string
	model    string

	tempFilesActive *prometheus.Desc
	providerInfo    *prometheus.Desc
}

// NewCollector creates a collector over the temp store and the configured
// provider. temp may be nil (the gauge will report 0).
func NewCollector(temp TempFiles, provider, model string) *Collector {
	return &Collector{
		temp:     temp,
		provider: provider,
		model:    model,
		tempFilesActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "temp_files_active"),
			"Temporary audio files currently held by in-flight requests.",
			nil, nil,
		),
		providerInfo: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "provider_info"),
			"Configured transcription provider (always 1).",
			[]string{"provider", "model"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tempFilesActive
	ch <- c.providerInfo
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	active := 0
	if c.temp != nil {
		active = c.temp.Active()
	}
	ch <- prometheus.MustNewConstMetric(c.tempFilesActive, prometheus.GaugeValue, float64(active))
	ch <- prometheus.MustNewConstMetric(c.providerInfo, prometheus.GaugeValue, 1, c.provider, c.model)
}
