package capture

// Option configures a Controller.
type Option func(*Controller)

// WithAuthorizer sets the access check run at the start of every Configure.
// Without one, access is assumed granted.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Controller) {
		c.authorize = a
	}
}

// WithResultHandler sets the callback that receives every Configure outcome.
// It runs on the goroutine that called Configure, after the session
// timeline has finished the configuration.
func WithResultHandler(h ResultHandler) Option {
	return func(c *Controller) {
		c.onResult = h
	}
}

// WithFrameHandler sets the consumer of forwarded frames.
func WithFrameHandler(h FrameHandler) Option {
	return func(c *Controller) {
		c.onFrame = h
	}
}

// WithPresets replaces the preset preference order.
func WithPresets(order ...Preset) Option {
	return func(c *Controller) {
		if len(order) > 0 {
			c.presets = append([]Preset(nil), order...)
		}
	}
}

// WithConfiguration sets the initial configuration.
func WithConfiguration(cfg Configuration) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithQueueDepth sets how many requests may wait on the session timeline.
func WithQueueDepth(n int) Option {
	return func(c *Controller) {
		c.queueDepth = n
	}
}
