package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "propertydag"
)

var (
	// PipelineNamespace is the prometheus namespace of batch pipeline operations
	PipelineNamespace = metrics.NewNamespace(NamespacePrefix, "pipeline", nil)
)

func init() {
	metrics.Register(PipelineNamespace)
}
