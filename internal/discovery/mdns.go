package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type wsduplex servers advertise.
	ServiceType = "_wsduplex._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second
)

// TXTRecords builds the TXT records advertised for a server.
func TXTRecords(path, version string) []string {
	if path == "" {
		path = "/"
	}
	return []string{"path=" + path, "version=" + version}
}

// Advertiser publishes a server on the local network until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
	once   sync.Once
}

// Advertise registers an instance of ServiceType on port. An empty instance
// name uses the hostname.
func Advertise(instance string, port int, path, version string) (*Advertiser, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine hostname: %w", err)
		}
		instance = host
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(path, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement. It is safe to call more than once.
func (a *Advertiser) Shutdown() {
	a.once.Do(a.server.Shutdown)
}

// Scanner handles mDNS discovery of wsduplex servers
type Scanner struct {
	// Timeout is the maximum time to wait for responses
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for servers until the timeout elapses or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := make(chan []*Instance, 1)

	go func() {
		instances := make([]*Instance, 0)
		seen := make(map[string]bool)
		for entry := range entries {
			inst := parseServiceEntry(entry)
			if inst == nil || seen[inst.Name] {
				continue
			}
			seen[inst.Name] = true
			instances = append(instances, inst)
		}
		collected <- instances
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	// The resolver closes entries once ctx is done.
	<-ctx.Done()
	return <-collected, nil
}

// parseServiceEntry converts a zeroconf service entry to an Instance.
// Returns nil if the entry has no usable address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Path:         metadata["path"],
		Version:      metadata["version"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
