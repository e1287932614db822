// Package service resolves entity names to repositories and runs the
// filter pipeline for list requests.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/filter"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/repository"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store"
)

// ErrUnknownEntity is returned when a request names an entity that was
// never registered.
var ErrUnknownEntity = errors.New("unknown entity")

// Service orchestrates CRUD requests for every registered entity.
type Service struct {
	registry     *schema.Registry
	store        store.Store
	handlers     map[string]filter.Handler
	handlerNames []string
	log          zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger replaces the logger handed to each pipeline.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithHandler registers an extra named filter for every entity.
func WithHandler(name string, handler filter.Handler) Option {
	return func(s *Service) {
		if _, ok := s.handlers[name]; !ok {
			s.handlerNames = append(s.handlerNames, name)
		}
		s.handlers[name] = handler
	}
}

// New creates a service over the registry and the store backing it.
func New(registry *schema.Registry, st store.Store, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    st,
		handlers: make(map[string]filter.Handler),
		log:      *logger.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entities lists the registered entity names.
func (s *Service) Entities() []string {
	return s.registry.Names()
}

// Repository returns the facade for a registered entity.
func (s *Service) Repository(entity string) (*repository.Repository, error) {
	declared, ok := s.registry.Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return repository.New(declared, s.store, s.registry), nil
}

// Get applies params to a fresh query over entity and executes it once.
// A new pipeline is built per call so no state survives between requests.
func (s *Service) Get(ctx context.Context, entity string, columns []string, params domain.Params) (domain.Result, error) {
	repo, err := s.Repository(entity)
	if err != nil {
		return domain.Result{}, err
	}

	log := s.log
	if ctxLog := logger.FromContext(ctx); ctxLog != logger.Logger() {
		log = *ctxLog
	}
	opts := []filter.Option{filter.WithLogger(log)}
	for _, name := range s.handlerNames {
		opts = append(opts, filter.WithHandler(name, s.handlers[name]))
	}
	pipeline := filter.New(repo.Entity(), s.registry, repo, opts...)

	result, err := pipeline.Run(ctx, repo.Select(columns...), params)
	if err != nil {
		return domain.Result{}, fmt.Errorf("failed to query %s: %w", entity, err)
	}
	return result, nil
}

// Find returns one record, eager-loading relations when any are named.
func (s *Service) Find(ctx context.Context, entity string, id string, relations []string) (domain.Record, error) {
	repo, err := s.Repository(entity)
	if err != nil {
		return nil, err
	}
	if len(relations) > 0 {
		return repo.FindWith(ctx, id, relations)
	}
	return repo.Show(ctx, id)
}

// Create inserts a record built from the fillable keys of data.
func (s *Service) Create(ctx context.Context, entity string, data domain.Record) (domain.Record, error) {
	repo, err := s.Repository(entity)
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, data)
}

// Update changes the record with id.
func (s *Service) Update(ctx context.Context, entity string, id string, data domain.Record) (domain.Record, error) {
	repo, err := s.Repository(entity)
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, data, id)
}

// Delete removes the record with id.
func (s *Service) Delete(ctx context.Context, entity string, id string) error {
	repo, err := s.Repository(entity)
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}
