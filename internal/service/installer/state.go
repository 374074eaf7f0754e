package installer

import "maps"

// InstallState carries the values collected by the wizard and where they go.
type InstallState struct {
	EnvPath string
	EnvVars map[string]string
}

// NewInstallState starts from defaults, which the steps offer as placeholders.
func NewInstallState(envPath string, defaults map[string]string) *InstallState {
	vars := make(map[string]string, len(defaults))
	maps.Copy(vars, defaults)
	return &InstallState{EnvPath: envPath, EnvVars: vars}
}
