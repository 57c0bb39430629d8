package sprites

import "fmt"

// ResourceLoadError reports that the image at Path could not be loaded.
// Callers decide whether to retry, fall back to another path or give up.
type ResourceLoadError struct {
	Path string
	Err  error
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Err
}

// ConfigError reports a sprite or manifest parameter outside its valid range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
