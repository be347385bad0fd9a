package services

import (
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

// Registry provides access to all plannerd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Store() *store.Store
	Ledger() *ledger.Ledger
	Feedback() feedback.Service
	Generator() generate.Generator
	Classifier() intent.Classifier
	Orchestrator() *orchestrator.Orchestrator
}

// Options configures the registry with service instances.
type Options struct {
	Store        *store.Store
	Ledger       *ledger.Ledger
	Feedback     feedback.Service
	Generator    generate.Generator
	Classifier   intent.Classifier
	Orchestrator *orchestrator.Orchestrator
}

// registry is the concrete implementation of Registry.
type registry struct {
	store        *store.Store
	ledger       *ledger.Ledger
	feedback     feedback.Service
	generator    generate.Generator
	classifier   intent.Classifier
	orchestrator *orchestrator.Orchestrator
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:        opts.Store,
		ledger:       opts.Ledger,
		feedback:     opts.Feedback,
		generator:    opts.Generator,
		classifier:   opts.Classifier,
		orchestrator: opts.Orchestrator,
	}
}

func (r *registry) Store() *store.Store                      { return r.store }
func (r *registry) Ledger() *ledger.Ledger                   { return r.ledger }
func (r *registry) Feedback() feedback.Service               { return r.feedback }
func (r *registry) Generator() generate.Generator            { return r.generator }
func (r *registry) Classifier() intent.Classifier            { return r.classifier }
func (r *registry) Orchestrator() *orchestrator.Orchestrator { return r.orchestrator }
