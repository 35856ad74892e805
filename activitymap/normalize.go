// Package activitymap converts account activity events into a flat,
// transport-agnostic shape for audit trails and activity feeds.
package activitymap

import (
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

const (
	// MetadataKeyActorType stores the actor type derived from accounts.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStanding stores the source standing for lifecycle transitions.
	MetadataKeyFromStanding = "from_standing"
	// MetadataKeyToStanding stores the target standing for lifecycle transitions.
	MetadataKeyToStanding = "to_standing"
)

const (
	defaultChannel = "accounts"
	defaultActorID = "system"

	objectTypeUser = "user"
)

// Category groups account verbs so downstream consumers can filter a feed
// without enumerating every event type.
type Category string

const (
	// CategorySignup covers account creation and confirmation.
	CategorySignup Category = "signup"
	// CategorySession covers logins and logouts.
	CategorySession Category = "session"
	// CategoryCredential covers password and email rotation.
	CategoryCredential Category = "credential"
	// CategoryLifecycle covers standing, role, and provisioning changes.
	CategoryLifecycle Category = "lifecycle"
	// CategoryOther is the fallback for verbs this package does not know.
	CategoryOther Category = "other"
)

// Normalized is the flat activity record handed to downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Category   Category       `json:"category"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// WithDefaultChannel sets the channel stamped on normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the final actor-id fallback when the event carries
// neither an actor id nor a user id.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize flattens an accounts.ActivityEvent. The subject is always the
// account the event happened to, so the object is fixed to the user record;
// who did it resolves actor id, then user id, then the fallback.
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		options.actorFallback,
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		Category:   Categorize(event.EventType),
		ObjectType: objectTypeUser,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Categorize maps an event type onto its feed category.
func Categorize(eventType accounts.ActivityEventType) Category {
	switch eventType {
	case accounts.ActivityEventSignupRequested, accounts.ActivityEventSignupConfirmed:
		return CategorySignup
	case accounts.ActivityEventLoginSuccess, accounts.ActivityEventLoginFailure,
		accounts.ActivityEventLogout, accounts.ActivityEventLogoutAll:
		return CategorySession
	case accounts.ActivityEventPasswordChanged, accounts.ActivityEventPasswordResetSuccess,
		accounts.ActivityEventEmailChanged:
		return CategoryCredential
	case accounts.ActivityEventStandingChanged, accounts.ActivityEventRoleChanged,
		accounts.ActivityEventProvisioned, accounts.ActivityEventDeleted:
		return CategoryLifecycle
	default:
		return CategoryOther
	}
}

// normalizeMetadata copies the event metadata and folds the actor type and
// standing transition into it without mutating the source map. Keys already
// present in the source win.
func normalizeMetadata(event accounts.ActivityEvent) map[string]any {
	extra := map[string]any{}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		extra[MetadataKeyActorType] = actorType
	}
	if event.FromStanding != "" {
		extra[MetadataKeyFromStanding] = string(event.FromStanding)
	}
	if event.ToStanding != "" {
		extra[MetadataKeyToStanding] = string(event.ToStanding)
	}

	if len(event.Metadata) == 0 && len(extra) == 0 {
		return nil
	}

	out := make(map[string]any, len(event.Metadata)+len(extra))
	for key, value := range extra {
		out[key] = value
	}
	for key, value := range event.Metadata {
		out[key] = value
	}
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
