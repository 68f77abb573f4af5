// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// CAMPUSLINK_API_URL, CAMPUSLINK_WS_URL, CAMPUSLINK_TOKEN and CAMPUSLINK_USER_ID
// override the corresponding file values.
package config
