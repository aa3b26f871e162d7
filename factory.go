package filescan

import (
	"fmt"
	"sync"
)

// StoreFactory creates a coordination store from config
type StoreFactory func(cfg *Config) (Store, error)

// PayloadFactory creates a payload store from config
type PayloadFactory func(cfg *Config) (PayloadStore, error)

var (
	storeFactories   = make(map[string]StoreFactory)
	payloadFactories = make(map[string]PayloadFactory)
	factoryMutex     sync.RWMutex
)

// RegisterStoreDriver registers a coordination store driver
func RegisterStoreDriver(name string, factory StoreFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	storeFactories[name] = factory
}

// RegisterPayloadDriver registers a payload store driver
func RegisterPayloadDriver(name string, factory PayloadFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	payloadFactories[name] = factory
}

// CreateStore creates the coordination store named by cfg.StoreDriver
func CreateStore(cfg *Config) (Store, error) {
	factoryMutex.RLock()
	factory, exists := storeFactories[cfg.StoreDriver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("store driver %s not registered", cfg.StoreDriver)
	}

	return factory(cfg)
}

// CreatePayloadStore creates the payload store named by cfg.PayloadDriver.
// It returns nil for "none" or an empty driver name.
func CreatePayloadStore(cfg *Config) (PayloadStore, error) {
	if cfg.PayloadDriver == "" || cfg.PayloadDriver == "none" {
		return nil, nil
	}

	factoryMutex.RLock()
	factory, exists := payloadFactories[cfg.PayloadDriver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("payload driver %s not registered", cfg.PayloadDriver)
	}

	return factory(cfg)
}
