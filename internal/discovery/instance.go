package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Instance is a wsduplex server found on the network.
type Instance struct {
	// Name is the mDNS service instance name (e.g., "bench")
	Name string

	// Hostname is the mDNS hostname (e.g., "bench.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the listening port
	Port int

	// Path is the HTTP path of the upgrade endpoint, from the "path" TXT record
	Path string

	// Version is the server version, from the "version" TXT record
	Version string

	// Metadata contains every TXT record
	Metadata map[string]string

	// DiscoveredAt is when the instance was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable description of the instance.
func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s) at %s", i.Name, i.Version, i.URL())
}

// URL returns the WebSocket URL of the upgrade endpoint.
func (i *Instance) URL() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(i.IP, strconv.Itoa(i.Port)),
		Path:   path,
	}
	return u.String()
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}
