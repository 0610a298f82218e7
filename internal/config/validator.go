package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "instances.ports.http")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidEngineModes returns the list of valid engine.mode values
func ValidEngineModes() []string {
	return []string{"auto", "sdk", "cli", "memory", "unavailable"}
}

// ValidPresentations returns the list of valid presentation modes
func ValidPresentations() []string {
	return []string{PresentationHeadless, PresentationDesktop}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateInstances()...)
	errs = append(errs, c.validatePorts()...)
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateEngine() []ValidationError {
	var errs []ValidationError
	e := c.Engine

	if !slices.Contains(ValidEngineModes(), e.Mode) {
		errs = append(errs, ValidationError{
			Field:   "engine.mode",
			Value:   e.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEngineModes(), ", ")),
		})
	}
	if e.CommandTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "engine.command_timeout", Value: e.CommandTimeout, Message: "must be positive"})
	}
	if e.StopTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "engine.stop_timeout", Value: e.StopTimeout, Message: "must be positive"})
	}
	if e.PullTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "engine.pull_timeout", Value: e.PullTimeout, Message: "must be positive"})
	}
	if e.ContainerPrefix == "" {
		errs = append(errs, ValidationError{Field: "engine.container_prefix", Value: e.ContainerPrefix, Message: "must not be empty"})
	}
	return errs
}

func (c *Config) validateInstances() []ValidationError {
	var errs []ValidationError
	in := c.Instances

	if in.MaxInstances < 1 {
		errs = append(errs, ValidationError{Field: "instances.max_instances", Value: in.MaxInstances, Message: "must be at least 1"})
	}
	if in.Image == "" {
		errs = append(errs, ValidationError{Field: "instances.image", Value: in.Image, Message: "must not be empty"})
	}
	if _, err := units.RAMInBytes(in.MemoryLimit); err != nil {
		errs = append(errs, ValidationError{Field: "instances.memory_limit", Value: in.MemoryLimit, Message: err.Error()})
	}
	if _, err := units.RAMInBytes(in.ShmSize); err != nil {
		errs = append(errs, ValidationError{Field: "instances.shm_size", Value: in.ShmSize, Message: err.Error()})
	}
	if !slices.Contains(ValidPresentations(), in.Presentation) {
		errs = append(errs, ValidationError{
			Field:   "instances.presentation",
			Value:   in.Presentation,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPresentations(), ", ")),
		})
	}
	if _, _, err := ParseUser(in.User); err != nil {
		errs = append(errs, ValidationError{Field: "instances.user", Value: in.User, Message: err.Error()})
	}
	if in.StreamingEnabled && len(in.HeadlessCommand) == 0 {
		errs = append(errs, ValidationError{Field: "instances.headless_command", Value: in.HeadlessCommand, Message: "required when streaming is enabled"})
	}
	if !in.StreamingEnabled && len(in.DesktopCommand) == 0 {
		errs = append(errs, ValidationError{Field: "instances.desktop_command", Value: in.DesktopCommand, Message: "required when streaming is disabled"})
	}
	return errs
}

// validatePorts enforces that no two roles collide anywhere in [0, max_instances)
func (c *Config) validatePorts() []ValidationError {
	n := c.Instances.MaxInstances
	if n < 1 {
		return nil
	}

	type portRange struct {
		field string
		base  int
	}
	p := c.Instances.Ports
	ranges := []portRange{
		{"instances.ports.http", p.HTTP},
		{"instances.ports.streaming", p.Streaming},
		{"instances.ports.native", p.Native},
		{"instances.ports.remote_desktop", p.RemoteDesktop},
	}

	var errs []ValidationError
	for _, r := range ranges {
		if r.base < 1 || r.base+n-1 > 65535 {
			errs = append(errs, ValidationError{
				Field:   r.field,
				Value:   r.base,
				Message: fmt.Sprintf("range [%d, %d] must stay within 1-65535", r.base, r.base+n-1),
			})
		}
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if a.base < b.base+n && b.base < a.base+n {
				errs = append(errs, ValidationError{
					Field:   b.field,
					Value:   b.base,
					Message: fmt.Sprintf("overlaps %s for %d instances", a.field, n),
				})
			}
		}
	}
	return errs
}

// ParseUser splits a numeric "uid:gid" string
func ParseUser(user string) (uid, gid int, err error) {
	parts := strings.Split(user, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("must be uid:gid")
	}
	if uid, err = strconv.Atoi(parts[0]); err != nil || uid < 0 {
		return 0, 0, fmt.Errorf("uid must be a non-negative integer")
	}
	if gid, err = strconv.Atoi(parts[1]); err != nil || gid < 0 {
		return 0, 0, fmt.Errorf("gid must be a non-negative integer")
	}
	return uid, gid, nil
}
