package brew

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xraph/brew/internal/container"
	"github.com/xraph/brew/internal/metrics"
)

// Option configures a container before construction.
type Option func(*config)

type config struct {
	params     map[string]any
	processors []PostProcessorDefinition
	logger     *zap.Logger
	registerer prometheus.Registerer
}

func (c *config) engineOpts() []container.Option {
	opts := []container.Option{container.WithLogger(c.logger)}
	if c.registerer != nil {
		opts = append(opts, container.WithMetrics(metrics.New(c.registerer)))
	}
	return opts
}

// WithParams supplies the immutable external parameter map consumed by
// producer parameter specs.
func WithParams(params map[string]any) Option {
	return func(c *config) {
		c.params = params
	}
}

// WithPostProcessors registers post-processor definitions. Declaration
// order is application order.
func WithPostProcessors(defs ...PostProcessorDefinition) Option {
	return func(c *config) {
		c.processors = append(c.processors, defs...)
	}
}

// WithLogger sets the container logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		c.logger = log
	}
}

// WithMetrics registers resolution metrics on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}
