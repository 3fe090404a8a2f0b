package graph

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by ConfigError and TopologyError. Match them with
// errors.Is.
var (
	ErrUnknownAttribute   = errors.New("unknown attribute")
	ErrDuplicateDirection = errors.New("direction attribute already declared")
	ErrNoDirection        = errors.New("no direction attribute declared")
	ErrLateAttribute      = errors.New("attribute declared after flows exist")
	ErrUnknownNode        = errors.New("unknown node")
	ErrUnknownFlow        = errors.New("unknown flow")
	ErrNoSpatialIndex     = errors.New(`spatial index not built, call SelectIndex first`)
	ErrClosed             = errors.New("transaction already committed")
)

// ConfigError reports invalid or missing configuration. It is fatal and never
// recovered.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TopologyError reports a malformed graph, such as a flow referencing a node
// that does not exist. It is fatal at construction time.
type TopologyError struct {
	Op  string
	Err error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology error: %s: %v", e.Op, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

func configErrorf(op string, err error, format string, args ...any) error {
	if format == "" {
		return &ConfigError{Op: op, Err: err}
	}
	return &ConfigError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

func topologyErrorf(op string, err error, format string, args ...any) error {
	if format == "" {
		return &TopologyError{Op: op, Err: err}
	}
	return &TopologyError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

// NewConfigError wraps err as a ConfigError for the named operation.
func NewConfigError(op string, err error) error {
	return &ConfigError{Op: op, Err: err}
}

// NewTopologyError wraps err as a TopologyError for the named operation.
func NewTopologyError(op string, err error) error {
	return &TopologyError{Op: op, Err: err}
}
