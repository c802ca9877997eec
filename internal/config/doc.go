// Package config provides the configuration of gridextract: defaults,
// validation, XDG directories and the YAML configuration file that holds
// grids, column schemas, polling bounds and captcha recognition settings.
package config
