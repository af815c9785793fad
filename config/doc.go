// Package config loads sqlops settings.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file (--config, or sqlops.yaml / sqlops.yml in the working
//     directory)
//  3. SQLOPS_ environment variables, with __ separating levels:
//     SQLOPS_WAREHOUSE__HOST, SQLOPS_CACHE__REDIS_URL
//  4. command-line flags that were explicitly set
//
// Credential fields are then resolved through package secret, so a file may
// say password: secretref:env:REDSHIFT_PASSWORD.
package config
