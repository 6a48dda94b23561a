package main

import (
	"strings"
	"sync"

	"fieldsync/internal/config"
	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.flagPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withAccess opens the store for the duration of one command. CLI commands
// log to stderr only through command output, so the access layer gets a
// no-op logger.
func (c *commandContext) withAccess(fn func(*queueaccess.Access) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	return fn(queueaccess.New(store, bus, logging.NewNop()))
}
