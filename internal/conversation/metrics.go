package conversation

import "github.com/prometheus/client_golang/prometheus"

var conversationResetsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "duckviz_conversation_resets_total",
		Help: "Total number of times a non-continuing question cleared session history.",
	},
)

func init() {
	prometheus.MustRegister(conversationResetsTotal)
}
