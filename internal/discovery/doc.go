// Package discovery advertises and finds wsduplex servers with multicast DNS.
//
// A server started with advertisement enabled registers an instance of the
// "_wsduplex._tcp" service. Its TXT records carry the upgrade path and the
// server version:
//
//	path=/
//	version=v1.2.0
//
// # Usage Example
//
//	adv, err := discovery.Advertise("bench", 8080, "/", version.Version)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	instances, err := discovery.NewScanner().Scan(ctx)
//	for _, inst := range instances {
//	    fmt.Println(inst.URL())
//	}
//
// Both directions need a network that passes multicast traffic; containers
// and some VPNs do not.
package discovery
