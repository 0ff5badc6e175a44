package config

import (
	"fmt"
	"net/url"
)

// Validate checks the config for contradictions that would only surface at
// runtime. Defaults must already be applied.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: server.base_url %q is not a valid URL", c.Server.BaseURL)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	switch c.Memory.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("config: memory.backend %q (want file or sqlite)", c.Memory.Backend)
	}
	for i, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("config: agents[%d]: %w", i, err)
		}
	}
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("config: schedules[%d] has no name", i)
		}
		if s.Schedule == "" {
			return fmt.Errorf("config: schedule %q has no schedule expression", s.Name)
		}
		if !s.Task.Mode.Valid() {
			return fmt.Errorf("config: schedule %q has invalid mode %q", s.Name, s.Task.Mode)
		}
		if len(s.Task.Agents) == 0 {
			return fmt.Errorf("config: schedule %q names no agents", s.Name)
		}
	}
	return nil
}
