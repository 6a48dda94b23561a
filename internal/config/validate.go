package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateProof(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if strings.TrimSpace(c.Ledger.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/fieldsync/config.toml"
		}
		return fmt.Errorf("ledger.base_url is required. Edit %s (create with 'fieldsync config init')", defaultPath)
	}
	if strings.TrimSpace(c.Ledger.EventsEndpoint) == "" {
		return errors.New("ledger.events_endpoint must be set")
	}
	if c.Ledger.RequestTimeout <= 0 {
		return errors.New("ledger.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateProof() error {
	if strings.TrimSpace(c.Proof.BaseURL) == "" {
		return errors.New("proof.base_url must be set")
	}
	if strings.TrimSpace(c.Proof.SchemaUID) == "" {
		return errors.New("proof.schema_uid must be set")
	}
	if c.Proof.RequestTimeout <= 0 {
		return errors.New("proof.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if err := ensurePositiveMap(map[string]int{
		"retry.max_fast_retries":           c.Retry.MaxFastRetries,
		"retry.cooldown_minutes":           c.Retry.CooldownMinutes,
		"retry.max_age_days":               c.Retry.MaxAgeDays,
		"retry.processing_timeout_seconds": c.Retry.ProcessingTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Retry.DebounceSeconds < 0 {
		return errors.New("retry.debounce_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.poll_interval_seconds": c.Scheduler.PollIntervalSeconds,
		"scheduler.batch_optimal":         c.Scheduler.BatchOptimal,
		"scheduler.batch_normal":          c.Scheduler.BatchNormal,
		"scheduler.batch_conservative":    c.Scheduler.BatchConservative,
		"scheduler.batch_critical":        c.Scheduler.BatchCritical,
	}); err != nil {
		return err
	}
	if c.Scheduler.BackgroundIntervalMinutes < 15 {
		return errors.New("scheduler.background_interval_minutes must be at least 15")
	}
	if c.Scheduler.BatchOptimal <= c.Scheduler.BatchNormal ||
		c.Scheduler.BatchNormal <= c.Scheduler.BatchConservative ||
		c.Scheduler.BatchConservative <= c.Scheduler.BatchCritical {
		return errors.New("scheduler batch sizes must strictly decrease from optimal to critical")
	}
	if c.Scheduler.LowBatteryPercent <= 0 || c.Scheduler.LowBatteryPercent >= 100 {
		return errors.New("scheduler.low_battery_percent must be between 1 and 99")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.RetentionDays <= 0 {
		return errors.New("storage.retention_days must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
