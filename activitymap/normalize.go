package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-talent-auth"
)

const (
	// MetadataKeyActorType stores auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyRole stores the principal role, when known.
	MetadataKeyRole = "role"
	// MetadataKeyOutcome stores success, failure or info.
	MetadataKeyOutcome = "outcome"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInfo    = "info"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "principal"
	defaultActorID    = "anonymous"
)

// Normalized is a transport agnostic activity record for audit pipelines.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
}

// Normalize converts an auth.ActivityEvent into a Normalized record.
// Lockout events carry no principal, their object id is the lockout scope.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   objectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

// Outcome classifies an event type for dashboards and alerting.
func Outcome(eventType auth.ActivityEventType) string {
	switch eventType {
	case auth.ActivityEventLoginSuccess, auth.ActivityEventSessionRestored, auth.ActivityEventProfileUpdated:
		return OutcomeSuccess
	case auth.ActivityEventLoginFailure, auth.ActivityEventLoginBlocked,
		auth.ActivityEventLockoutEngaged, auth.ActivityEventSessionDiscarded:
		return OutcomeFailure
	}
	return OutcomeInfo
}

// Sink returns an auth.ActivitySink that normalizes every event before
// handing it to fn.
func Sink(fn func(context.Context, Normalized) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, Normalize(event, opts...))
	})
}

func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object id extraction.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has neither an
// actor nor a user id.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

func objectID(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if id := strings.TrimSpace(event.UserID); id != "" {
		return id
	}
	if scope, ok := event.Metadata["scope"].(string); ok {
		return scope
	}
	return ""
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		out[k] = v
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			out[MetadataKeyActorType] = actorType
		}
	}
	if event.Role != "" {
		out[MetadataKeyRole] = string(event.Role)
	}
	out[MetadataKeyOutcome] = Outcome(event.EventType)

	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
