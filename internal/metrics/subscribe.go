package metrics

import (
	"sort"
	"sync"
	"time"

	"cointrade/logger"
)

// Metric is one emitted measurement, such as the used request weight
// reported by an exchange or a journal flush count.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// Handler receives metrics from EmitMetric on the emitting goroutine.
type Handler func(Metric)

type subscription struct {
	fn    Handler
	names map[string]bool
}

var (
	subsMu sync.RWMutex
	subs   = map[uint64]*subscription{}
	nextID uint64
)

// Subscribe delivers every emitted metric whose name is in names, or every
// metric when names is empty. The returned func removes the subscription.
func Subscribe(fn Handler, names ...string) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s := &subscription{fn: fn}
	if len(names) > 0 {
		s.names = make(map[string]bool, len(names))
		for _, n := range names {
			s.names[n] = true
		}
	}

	subsMu.Lock()
	nextID++
	id := nextID
	subs[id] = s
	subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			subsMu.Lock()
			delete(subs, id)
			subsMu.Unlock()
		})
	}
}

func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    cloneFields(fields),
	}
	log.WithComponent(component).LogMetric(component, name, value, metricType, m.Fields)
	dispatch(m)
	return m, true
}

func dispatch(m Metric) {
	subsMu.RLock()
	var targets []Handler
	for _, s := range subs {
		if s.names == nil || s.names[m.Name] {
			targets = append(targets, s.fn)
		}
	}
	subsMu.RUnlock()

	for _, fn := range targets {
		fn(m)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	out := make(logger.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func sortedKeys(fields logger.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
