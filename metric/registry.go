// Package metric manages Prometheus metric registration for the service.
// Components receive an optional *Registry; a nil registry disables metrics
// without conditional wiring at every call site.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Manu-world/flight-tracking-service/errors"
)

// Registry wraps a dedicated Prometheus registry and tracks per-component
// metric ownership so duplicate registrations fail loudly.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registered         map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewRegistry creates a metrics registry with Go runtime and process
// collectors pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry for the
// /metrics handler.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register registers a collector under component.name ownership.
func (r *Registry) Register(component, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapFatal(
			fmt.Errorf("metric %s already registered", key),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapFatal(err, "Registry", "Register",
				fmt.Sprintf("prometheus conflict for %s", key))
		}
		return errors.WrapFatal(err, "Registry", "Register", "register collector")
	}

	r.registered[key] = c
	return nil
}

// MustRegister registers collectors under component ownership and panics on
// conflict. Used during startup where a conflict is a programming error.
func (r *Registry) MustRegister(component string, cs ...prometheus.Collector) {
	for i, c := range cs {
		if err := r.Register(component, fmt.Sprintf("collector_%d", i), c); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a collector from the registry.
func (r *Registry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	c, exists := r.registered[key]
	if !exists {
		return false
	}
	ok := r.prometheusRegistry.Unregister(c)
	if ok {
		delete(r.registered, key)
	}
	return ok
}
