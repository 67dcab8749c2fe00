package observability

import "github.com/prometheus/client_golang/prometheus"

// Label values for the domain counters.
const (
	OriginDirect  = "direct"
	OriginRequest = "request"

	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"

	EntityMessage      = "message"
	EntityRequest      = "request"
	EntityNotification = "notification"
)

var (
	// MessagesCreated counts messages appended to the log, by how they came
	// to exist: sent directly or materialized from an accepted request.
	MessagesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_created_total",
			Help: "Messages appended to the message log.",
		},
		[]string{"origin"},
	)

	// Requests counts message request events (created, conflict, accepted, rejected).
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_requests_total",
			Help: "Message request lifecycle events by outcome.",
		},
		[]string{"outcome"},
	)

	// NotificationsDispatched counts committed notification appends.
	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_notifications_total",
			Help: "Notifications appended to user feeds.",
		},
		[]string{"content_type"},
	)

	// AdminDeleted counts rows removed by administrative cascades.
	AdminDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_admin_deleted_total",
			Help: "Rows removed by administrative cascading deletes.",
		},
		[]string{"entity"},
	)
)

func init() {
	prometheus.MustRegister(MessagesCreated, Requests, NotificationsDispatched, AdminDeleted)
}
