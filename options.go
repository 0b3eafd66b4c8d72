package authclient

import "time"

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger. A nil logger falls back to the default one.
func WithLogger(logger Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = normalizeLogger(logger)
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSessionConfig sets leeways, watch interval and role options.
func WithSessionConfig(cfg SessionConfig) ControllerOption {
	return func(c *Controller) {
		c.config = cfg
	}
}

// WithActivitySink records session events. Sink errors are logged only.
func WithActivitySink(sink ActivitySink) ControllerOption {
	return func(c *Controller) {
		c.activity = normalizeActivitySink(sink)
	}
}

// WithNotifier receives user facing notices.
func WithNotifier(notifier Notifier) ControllerOption {
	return func(c *Controller) {
		if notifier == nil {
			notifier = noopNotifier{}
		}
		c.notifier = notifier
	}
}

// WithCustomerSync is notified once per new authenticated session.
func WithCustomerSync(sync CustomerSync) ControllerOption {
	return func(c *Controller) {
		c.customers = sync
	}
}

// WithProfileLoader overrides profile hydration. By default the provider is
// used when it implements ProfileLoader.
func WithProfileLoader(loader ProfileLoader) ControllerOption {
	return func(c *Controller) {
		c.profiles = loader
	}
}

// WithTransitionHook runs hook after every committed state change.
func WithTransitionHook(hook TransitionHook) ControllerOption {
	return func(c *Controller) {
		if hook != nil {
			c.hooks = append(c.hooks, hook)
		}
	}
}

// WithRefresher shares a refresh coalescer with other components.
func WithRefresher(refresher *Refresher) ControllerOption {
	return func(c *Controller) {
		c.refresher = refresher
	}
}

// WithRoleOptions tunes role extraction.
func WithRoleOptions(opts ...RoleOption) ControllerOption {
	return func(c *Controller) {
		c.roleOpts = append(c.roleOpts, opts...)
	}
}
