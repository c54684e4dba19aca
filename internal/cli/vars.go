package cli

import (
	"github.com/alphaloop/alphaloop/internal/config"
	"github.com/alphaloop/alphaloop/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath  string
	Config    *config.Config
	Registry  *observability.Registry
	Sampler   *observability.ResourceSampler
	Diversity *observability.DiversityTracker
	Lifecycle *observability.LifecycleTracker
	Alerts    *observability.AlertEngine
	Feeds     *observability.Feeds
)
