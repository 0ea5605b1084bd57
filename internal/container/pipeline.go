package container

import (
	errors2 "github.com/xraph/brew/internal/errors"
)

// Pipeline is the ordered chain of post-processors. Processors are built
// once from their definitions at container construction and applied in
// declaration order, each processor's output feeding the next.
type Pipeline struct {
	entries []pipelineEntry
}

type pipelineEntry struct {
	id   string
	proc PostProcessor
}

func newPipeline(defs []PostProcessorDefinition) (*Pipeline, error) {
	p := &Pipeline{entries: make([]pipelineEntry, 0, len(defs))}
	for _, def := range defs {
		proc, err := def.Producer()
		if err != nil {
			return nil, errors2.NewConstructionError(def.ID, err)
		}
		if proc == nil {
			return nil, errors2.NewConstructionErrorf(def.ID, "post-processor producer returned nil")
		}
		p.entries = append(p.entries, pipelineEntry{id: def.ID, proc: proc})
	}
	return p, nil
}

// Apply runs the instance through every processor. The first failure aborts
// the chain; the caller must not cache anything on failure.
func (p *Pipeline) Apply(beanID string, instance any) (any, error) {
	for _, e := range p.entries {
		next, err := e.proc.Process(beanID, instance)
		if err != nil {
			return nil, errors2.NewConstructionError(beanID, err)
		}
		instance = next
	}
	return instance, nil
}

// Len returns the number of registered processors.
func (p *Pipeline) Len() int {
	return len(p.entries)
}
