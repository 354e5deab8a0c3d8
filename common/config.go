package common

// Scalar is a config or metric value. Supported dynamic types are bool,
// int64, float64, string and []byte. Values decoded from JSON arrive as
// float64 for numbers; the typed getters accept both.
type Scalar = any

// Config carries instruction settings from the server to a client,
// such as "epochs" or "learning_rate".
type Config map[string]Scalar

// Metrics carries named results from a client back to the server.
type Metrics map[string]Scalar

// GetString retrieves a string value, returning defaultVal if not set.
func (c Config) GetString(key, defaultVal string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return defaultVal
}

// GetBool retrieves a bool value, returning defaultVal if not set.
func (c Config) GetBool(key string, defaultVal bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return defaultVal
}

// GetInt retrieves an integer value, returning defaultVal if not set.
// Float values are truncated.
func (c Config) GetInt(key string, defaultVal int64) int64 {
	switch v := c[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return defaultVal
}

// GetFloat retrieves a float value, returning defaultVal if not set.
func (c Config) GetFloat(key string, defaultVal float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return defaultVal
}

// With returns a copy of the config with key set to value.
func (c Config) With(key string, value Scalar) Config {
	out := make(Config, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

// Float retrieves a numeric metric. The second result is false when the
// metric is missing or not numeric.
func (m Metrics) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
