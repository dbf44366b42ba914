package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uploadAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rikipost_media_upload_attempts_total",
	Help: "Number of media upload attempts, including retries",
})

var uploadFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rikipost_media_upload_failures_total",
	Help: "Number of failed media upload attempts",
})
