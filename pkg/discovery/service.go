// Package discovery announces and finds processing daemons on the local
// network over mDNS.
package discovery

import (
	"context"
	"net"
	"strconv"
)

const (
	DefaultServiceType = "_fileproc._tcp"
	DefaultDomain      = "local"
)

type ServiceInfo struct {
	Name   string // instance name, the daemon's hostname by default
	Type   string // service type, e.g. "_fileproc._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
	// Text holds the TXT record of the instance.
	Text map[string]string
}

// Target returns the host:port a client dials to reach the instance.
func (s ServiceInfo) Target() string {
	host := s.Name
	if s.Addr != nil {
		host = s.Addr.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// DiscoveryResult carries either a snapshot of the instances currently
// visible or a browse error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
