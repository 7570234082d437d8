package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/hostfire/custom_errors"
)

// HandlerFunc executes one job. ctx is cancelled when the server shuts down.
type HandlerFunc func(ctx context.Context, args ...any) error

type JobHandler struct {
	handlers map[string]HandlerFunc
	mutex    sync.RWMutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a new job handler by name.
func (jh *JobHandler) Register(name string, handler HandlerFunc) error {
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if _, exists := jh.handlers[name]; exists {
		return fmt.Errorf("%w: '%s'", custom_errors.ErrHandlerExists, name)
	}
	jh.handlers[name] = handler
	return nil
}

func (jh *JobHandler) Exists(name string) bool {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	_, exists := jh.handlers[name]
	return exists
}

// Execute runs the named handler. A panicking handler is reported as an error.
func (jh *JobHandler) Execute(ctx context.Context, name string, args ...any) (err error) {
	jh.mutex.RLock()
	handler, exists := jh.handlers[name]
	jh.mutex.RUnlock()
	if !exists {
		return fmt.Errorf("%w: '%s'", custom_errors.ErrHandlerNotFound, name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler '%s': %v", name, r)
		}
	}()
	return handler(ctx, args...)
}

func (jh *JobHandler) List() []string {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	names := make([]string, 0, len(jh.handlers))
	for name := range jh.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
