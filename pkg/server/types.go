// Package server exposes the watch registry over HTTP and websockets.
//
// Poll clients use the REST routes and compare the checksum they hold
// against the server's current one. Push clients open /ws, subscribe to a
// proposal file and receive a message for every verified change.
//
// Example usage:
//
//	srv := server.New(server.Config{Addr: ":8000"}, server.Deps{
//	    Registry:   reg,
//	    Detector:   det,
//	    Resolver:   res,
//	    Dispatcher: dispatcher,
//	}, log)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"time"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/history"
	"github.com/0xmhha/filewatch/pkg/notify"
	"github.com/0xmhha/filewatch/pkg/registry"
	"github.com/0xmhha/filewatch/pkg/resolver"
)

// Config contains server configuration.
type Config struct {
	// Addr is the listen address (default ":8000").
	Addr string

	// AllowedOrigins lists origins allowed for CORS and websocket
	// upgrades. "*" allows any origin; an empty list allows same-host
	// origins only.
	AllowedOrigins []string

	// WriteTimeout bounds each websocket frame write (default 10s).
	WriteTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers (default 5s).
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout is the grace period for in-flight requests
	// (default 5s).
	ShutdownTimeout time.Duration
}

// Deps are the components the server routes requests to.
type Deps struct {
	Registry   registry.Registry
	Detector   detector.Detector
	Resolver   resolver.Resolver
	Dispatcher *notify.Dispatcher

	// Journal is optional; without it the history route answers 404.
	Journal history.Journal
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Proposal string `json:"proposal"`
	FileType string `json:"file_type"`
}

type currentResponse struct {
	Content      string               `json:"content"`
	LastModified float64              `json:"last_modified"`
	Checksum     detector.Fingerprint `json:"checksum"`
}

type statusResponse struct {
	Status   bool   `json:"status"`
	Proposal string `json:"proposal"`
	FileType string `json:"file_type"`
}

type changedResponse struct {
	// Changed is nil when the server has no established checksum.
	Changed *bool `json:"changed"`
}

type historyResponse struct {
	Path    string           `json:"path"`
	Records []history.Record `json:"records"`
}

type proposalsResponse struct {
	Proposals []resolver.Proposal `json:"proposals"`
}
