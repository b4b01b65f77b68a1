package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Message appends by result (ok, error).",
		},
		[]string{"result"},
	)

	AttachmentUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_attachment_uploads_total",
			Help: "Attachment uploads by result (ok, error).",
		},
		[]string{"result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Chat sessions currently bound to a room.",
		},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Open websocket connections.",
		},
	)

	ToolSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_tool_selections_total",
			Help: "Tool panel selections by tool.",
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(MessagesAppended)
	prometheus.MustRegister(AttachmentUploads)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(WebsocketConnections)
	prometheus.MustRegister(ToolSelections)
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
