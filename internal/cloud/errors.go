// SPDX-License-Identifier: MIT

package cloud

// ConfigError reports missing account or role configuration. It is raised
// at submit time and is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "cloud: configuration error: " + e.Reason
}
