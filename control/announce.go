package control

import (
	"fmt"
	"net"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const serviceType = "_collider._udp"

// Announce advertises the control server over mDNS. The returned
// function shuts the advertisement down.
func Announce(name string, port int, logger *logrus.Logger) (func(), error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	service, err := mdns.NewMDNSService(name, serviceType, "", "", port, ips, []string{"proto=osc"})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"name": name,
		"port": port,
		"type": serviceType,
	}).Info("mdns advertisement started")
	return func() { _ = server.Shutdown() }, nil
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
