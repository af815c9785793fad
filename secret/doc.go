// Package secret resolves credentials referenced from configuration.
//
// Configuration values such as the warehouse password or the Redis URL may
// hold either a literal, an environment reference or a provider reference:
//
//	password: ${REDSHIFT_PASSWORD}
//	password: secretref:env:REDSHIFT_PASSWORD
//	password: secretref:file:/run/secrets/redshift
//	redis_url: redis://:secretref:env:REDIS_PASSWORD@cache:6379/0
//
// ${VAR} is expanded first and a missing variable is an error. $$ escapes a
// literal dollar sign. A bare $VAR is left untouched since passwords
// routinely contain dollar signs.
//
// Resolved values must never be logged.
package secret
