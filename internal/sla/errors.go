package sla

import "fmt"

// ConfigError reports an invalid business calendar or SLA catalog.
// It is fatal at startup: a calendar without working time would make
// deadline computation loop forever.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid sla configuration: %s: %s", e.Field, e.Reason)
}
