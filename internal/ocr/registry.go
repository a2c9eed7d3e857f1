package ocr

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EngineConfig carries the settings an engine factory may use.
type EngineConfig struct {
	Binary  string
	Timeout time.Duration
}

// EngineFactory builds an engine from configuration.
type EngineFactory func(EngineConfig) Engine

var (
	enginesMu sync.RWMutex
	engines   = map[string]EngineFactory{
		"cli": func(cfg EngineConfig) Engine {
			return &Processor{Binary: cfg.Binary, Timeout: cfg.Timeout}
		},
	}
)

// RegisterEngine makes an engine selectable by name. Engine packages call
// it from init.
func RegisterEngine(name string, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = factory
}

// NewEngine builds the engine registered under name.
func NewEngine(name string, cfg EngineConfig) (Engine, error) {
	enginesMu.RLock()
	factory, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ocr engine %q not registered (have %v)", name, Engines())
	}
	return factory(cfg), nil
}

// Engines lists registered engine names.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
