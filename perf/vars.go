package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	HandleLatency   = metric.NewHistogram("1m1s")
	PacketsSent     = metric.NewCounter("10s1s")
	PacketsReceived = metric.NewCounter("10s1s")
	SendFailures    = metric.NewCounter("10s1s")
	LSAsAccepted    = metric.NewCounter("10s1s")
	LSAsDiscarded   = metric.NewCounter("10s1s")
	Floods          = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("sospf:SentPacket/s", PacketsSent)
	expvar.Publish("sospf:RecvPacket/s", PacketsReceived)
	expvar.Publish("sospf:SendFailures/s", SendFailures)
	expvar.Publish("sospf:LSAAccepted/s", LSAsAccepted)
	expvar.Publish("sospf:LSADiscarded/s", LSAsDiscarded)
	expvar.Publish("sospf:Floods/s", Floods)
	expvar.Publish("sospf:HandleLatency (µs)", HandleLatency)
}
