// Package config loads syncd configuration from YAML.
//
// Values may reference environment variables as ${VAR}; an optional dotenv
// file is loaded first so local secrets stay out of the YAML.
package config
