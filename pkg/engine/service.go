package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/branch"
	"github.com/rhuss/convlog/pkg/ordering"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/storage"
	"github.com/rhuss/convlog/pkg/tools"
)

// Config holds configuration for the Service.
type Config struct {
	Ordering ordering.Config
	Branch   branch.Config

	// Executors run tool calls for ResolveToolCalls. Without executors
	// every call is answered with an error result.
	Executors []tools.Executor

	// AllowedTools restricts which tools may run. Empty allows all.
	AllowedTools []string

	// ToolLimit bounds concurrent tool executions. Zero means unbounded.
	ToolLimit int
}

// Service performs conversation operations against a store.
type Service struct {
	store     storage.EventStore
	providers *provider.Registry
	appender  *ordering.Manager
	brancher  *branch.Engine
	cfg       Config
}

// New creates a Service. The store and provider registry must not be nil.
func New(store storage.EventStore, providers *provider.Registry, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if providers == nil {
		return nil, fmt.Errorf("engine: provider registry must not be nil")
	}
	appender, err := ordering.New(store, cfg.Ordering)
	if err != nil {
		return nil, err
	}
	brancher, err := branch.New(store, cfg.Branch)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		providers: providers,
		appender:  appender,
		brancher:  brancher,
		cfg:       cfg,
	}, nil
}

// CreateConversation registers an empty conversation. An empty id means a
// generated one. The id in use is returned.
func (s *Service) CreateConversation(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = api.NewConversationID()
	}
	if err := s.store.CreateConversation(ctx, id); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return "", api.NewConflictError(fmt.Sprintf("conversation %s already exists", id))
		}
		return "", err
	}
	return id, nil
}

// DeleteConversation removes a conversation and its events.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	return mapStoreError(s.store.DeleteConversation(ctx, id), id)
}

// Load returns the conversation's events as a log, in order-key order.
func (s *Service) Load(ctx context.Context, conversationID string) (*api.EventLog, error) {
	stored, err := s.store.ListEvents(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err, conversationID)
	}
	events := make([]*api.Event, len(stored))
	for i := range stored {
		events[i] = &stored[i].Event
	}
	log, err := api.NewEventLog(events...)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: stored events do not form a valid log: %w", conversationID, err)
	}
	return log, nil
}

// Append adds events after the conversation's last event. Tool results
// must answer calls that are already in the conversation or earlier in
// events; otherwise nothing is stored and a validation error is returned.
func (s *Service) Append(ctx context.Context, conversationID string, events ...*api.Event) (*ordering.AppendResult, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e == nil {
			return nil, api.NewValidationError("events", "event is nil")
		}
		if e.ID == "" {
			e.ID = api.NewEventID()
		}
		if err := log.Append(e); err != nil {
			return nil, err
		}
	}
	return s.appender.Append(ctx, conversationID, events...)
}

// Branch forks a conversation at req.CutIndex.
func (s *Service) Branch(ctx context.Context, req branch.Request) (*branch.Result, error) {
	return s.brancher.Branch(ctx, req)
}

// Providers returns the provider registry.
func (s *Service) Providers() *provider.Registry { return s.providers }

func mapStoreError(err error, conversationID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(fmt.Sprintf("conversation %s not found", conversationID))
	}
	return err
}
