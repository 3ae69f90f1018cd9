package logging

import "go.uber.org/zap"

// New returns the global sugared logger tagged with the component name.
// It must be called after config.New has replaced the global logger.
func New(component string) *zap.SugaredLogger {
	return zap.S().With("component", component)
}
