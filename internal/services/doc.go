// Package services provides the centralized service registry for
// plannerd.
//
// Registry pattern for accessing the core services (store, ledger,
// feedback, generator, classifier, orchestrator). Use NewRegistry() to
// create a registry with service instances, then accessor methods to
// retrieve individual services.
package services
