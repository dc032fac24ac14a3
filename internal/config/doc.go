// Package config loads logmux node configuration. Default() is the
// baseline; Load overlays a JSON, YAML or TOML file chosen by extension and
// FromEnv overlays LOGMUX_* variables.
//
//	cfg, err := config.Load("/etc/logmux.yaml")
//	if err != nil {
//		return err
//	}
//	config.FromEnv(&cfg)
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Spec: catalog.Default()})
package config
