// Package model defines shared types for the proxy.
package model

import "net/http"

// Header is a single rendered response header. Multiple values of the same
// field are already joined.
type Header struct {
	Name  string
	Value string
}

// AdjustedRequest is the rewritten form of an inbound request: a GET of the
// client's request target with a single Host header. Nothing else from the
// raw buffer is carried over.
type AdjustedRequest struct {
	Method    string
	TargetURI string
	Host      string
}

// NewAdjustedRequest returns a GET request for targetURI addressed to host.
func NewAdjustedRequest(targetURI, host string) AdjustedRequest {
	return AdjustedRequest{
		Method:    http.MethodGet,
		TargetURI: targetURI,
		Host:      host,
	}
}

// UpstreamResponse is a fully materialized upstream reply.
type UpstreamResponse struct {
	Version        string // "1.1", "2.0"
	StatusCode     int
	Reason         string
	ContentHeaders []Header
	GeneralHeaders []Header
	Body           string
}
