// Package metrics holds the prometheus collectors of master, game server and client processes.
//
// Every process owns one registry; collectors are created per component instance so that
// several instances can live in one test binary without clashing on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xiaonanln/fpsworld/engine/opmon"
)

const namespace = "fpsworld"

// NewRegistry creates a registry preloaded with the go runtime, process and operation
// duration collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opmon.Register(reg)
	return reg
}

// Handler serves the registry in the prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		return
	}
	reg.MustRegister(cs...)
}

// Driver instruments the tick loop
type Driver struct {
	TickDuration  prometheus.Histogram
	EventsDrained *prometheus.CounterVec
}

// NewDriver creates the tick loop collectors for component and registers them on reg (may be nil)
func NewDriver(reg prometheus.Registerer, component string) *Driver {
	d := &Driver{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "driver",
			Name:        "tick_duration_seconds",
			Help:        "Time spent in one replication tick.",
			ConstLabels: prometheus.Labels{"component": component},
			Buckets:     []float64{.0005, .001, .002, .004, .008, .016, .032, .064},
		}),
		EventsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "driver",
			Name:        "events_total",
			Help:        "Transport events drained by the tick loop.",
			ConstLabels: prometheus.Labels{"component": component},
		}, []string{"kind"}),
	}
	register(reg, d.TickDuration, d.EventsDrained)
	return d
}

// RPC instruments the rpc dispatcher
type RPC struct {
	Calls *prometheus.CounterVec
}

// RPC call outcomes
const (
	RPCAccepted      = "accepted"
	RPCRejected      = "rejected"
	RPCUnauthorized  = "unauthorized"
	RPCBadArgs       = "bad_args"
	RPCNotFound      = "not_found"
	RPCRelayed       = "relayed"
	RPCAuthoritative = "authoritative"
)

// NewRPC creates the dispatcher collectors
func NewRPC(reg prometheus.Registerer) *RPC {
	r := &RPC{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	register(reg, r.Calls)
	return r
}

// Master instruments the matchmaking service
type Master struct {
	GameServers    prometheus.Gauge
	Clients        prometheus.Gauge
	WaitingClients prometheus.Gauge
	FreePorts      prometheus.Gauge
	Launches       *prometheus.CounterVec
	Routes         *prometheus.CounterVec
	Reroutes       prometheus.Counter
}

// NewMaster creates the matchmaking collectors
func NewMaster(reg prometheus.Registerer) *Master {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "master", Name: name, Help: help})
	}
	m := &Master{
		GameServers:    gauge("game_servers", "Registered game servers."),
		Clients:        gauge("clients", "Connected clients."),
		WaitingClients: gauge("waiting_clients", "Clients waiting for a route."),
		FreePorts:      gauge("free_ports", "Free ports in the game server pool."),
		Launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "master", Name: "launches_total", Help: "Game server launch attempts.",
		}, []string{"result"}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "master", Name: "routes_total", Help: "Answered game server requests.",
		}, []string{"result"}),
		Reroutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "master", Name: "reroutes_total", Help: "Routes of clients that were routed before.",
		}),
	}
	register(reg, m.GameServers, m.Clients, m.WaitingClients, m.FreePorts, m.Launches, m.Routes, m.Reroutes)
	return m
}

// Game instruments an authoritative game server
type Game struct {
	Players           prometheus.Gauge
	Entities          prometheus.Gauge
	MalformedMessages prometheus.Counter
	Kicks             prometheus.Counter
	SessionSeconds    prometheus.Histogram
}

// NewGame creates the game server collectors
func NewGame(reg prometheus.Registerer) *Game {
	g := &Game{
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "game", Name: "players", Help: "Registered players.",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "game", Name: "entities", Help: "Live entities.",
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "game", Name: "malformed_messages_total", Help: "Dropped malformed messages.",
		}),
		Kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "game", Name: "kicks_total", Help: "Players kicked.",
		}),
		SessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "game", Name: "session_seconds", Help: "Time players stayed on the server.",
			Buckets: prometheus.ExponentialBuckets(10, 3, 8),
		}),
	}
	register(reg, g.Players, g.Entities, g.MalformedMessages, g.Kicks, g.SessionSeconds)
	return g
}
