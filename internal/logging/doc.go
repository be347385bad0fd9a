// Package logging provides the zap-based logger used across plannerd,
// with correlation fields (run, user, intent) carried on context.Context.
package logging
