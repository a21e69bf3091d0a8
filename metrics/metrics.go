package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks open client connections, authenticated
	// or not.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_connections_active",
		Help: "Number of open client connections.",
	})

	// SessionsAuthenticated tracks logged-in sessions.
	SessionsAuthenticated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_sessions_authenticated",
		Help: "Number of authenticated sessions.",
	})

	// CommandsTotal counts dispatched commands by keyword.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_commands_total",
		Help: "Commands dispatched, by command keyword.",
	}, []string{"command"})

	// MessagesDeliveredTotal counts message deliveries. Mode is realtime
	// for a live push and offline for a stored copy handed out later.
	MessagesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_messages_delivered_total",
		Help: "Messages delivered to recipients, by delivery mode.",
	}, []string{"mode"})

	// GroupFanoutTotal counts individual recipient pushes produced by
	// group messages.
	GroupFanoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_group_fanout_total",
		Help: "Per-recipient pushes produced by group messages.",
	})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
