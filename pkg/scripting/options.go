package scripting

import (
	"fmt"
	"time"
)

// Security levels for script execution
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// Options controls how scripts are executed.
type Options struct {
	// Timeout bounds a single script call
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`

	// SecurityLevel defines sandbox restrictions (strict, standard, permissive)
	SecurityLevel string `yaml:"securityLevel" json:"security_level,omitempty"`

	// MaxStackDepth is the maximum call stack depth
	MaxStackDepth int `yaml:"maxStackDepth" json:"max_stack_depth,omitempty"`

	// PoolSize is the number of idle runtimes kept for reuse
	PoolSize int `yaml:"poolSize" json:"pool_size,omitempty"`
}

// ApplyDefaults sets default values for unset fields
func (o *Options) ApplyDefaults() {
	if o.Timeout == 0 {
		o.Timeout = time.Second
	}
	if o.SecurityLevel == "" {
		o.SecurityLevel = SecurityLevelStandard
	}
	if o.MaxStackDepth == 0 {
		o.MaxStackDepth = 256
	}
	if o.PoolSize == 0 {
		o.PoolSize = 4
	}
}

// Validate checks if the options are valid
func (o *Options) Validate() error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch o.SecurityLevel {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
	default:
		return fmt.Errorf("invalid security level: %s", o.SecurityLevel)
	}
	if o.MaxStackDepth <= 0 {
		return fmt.Errorf("max stack depth must be positive")
	}
	if o.PoolSize < 0 {
		return fmt.Errorf("pool size must not be negative")
	}
	return nil
}
