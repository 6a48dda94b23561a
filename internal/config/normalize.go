package config

import "strings"

// normalize expands path fields and trims string settings so validation and
// downstream consumers see canonical values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.CredentialsFile, err = expandPath(c.Paths.CredentialsFile); err != nil {
		return err
	}

	c.Ledger.BaseURL = strings.TrimRight(strings.TrimSpace(c.Ledger.BaseURL), "/")
	c.Ledger.EventsEndpoint = strings.TrimSpace(c.Ledger.EventsEndpoint)
	if c.Ledger.EventsEndpoint != "" && !strings.HasPrefix(c.Ledger.EventsEndpoint, "/") {
		c.Ledger.EventsEndpoint = "/" + c.Ledger.EventsEndpoint
	}
	c.Proof.BaseURL = strings.TrimRight(strings.TrimSpace(c.Proof.BaseURL), "/")
	c.Proof.SchemaUID = strings.TrimSpace(c.Proof.SchemaUID)

	c.Device.Battery = strings.TrimSpace(c.Device.Battery)
	cleaned := make([]string, 0, len(c.Device.MeteredInterfaces))
	for _, iface := range c.Device.MeteredInterfaces {
		if iface = strings.TrimSpace(iface); iface != "" {
			cleaned = append(cleaned, iface)
		}
	}
	c.Device.MeteredInterfaces = cleaned

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
