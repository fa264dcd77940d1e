package helpers

import (
	"net"
	"sort"
	"strings"

	"github.com/juju/errors"
)

// InterfaceAddrs returns first IPv4 address of every interface that has one, keyed by interface name.
func InterfaceAddrs() (map[string]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Annotate(err, "list interfaces")
	}
	result := make(map[string]string, len(ifaces))
	for _, iface := range ifaces {
		if ip := firstIPv4(iface); ip != "" {
			result[iface.Name] = ip
		}
	}
	return result, nil
}

// InterfaceAddr resolves interface name to its IPv4 address.
// Not found error lists available interfaces.
func InterfaceAddr(name string) (string, error) {
	all, err := InterfaceAddrs()
	if err != nil {
		return "", err
	}
	if ip, ok := all[name]; ok {
		return ip, nil
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, n+" : "+all[n])
	}
	return "", errors.NotFoundf("interface %s (available: %s)", name, strings.Join(lines, ", "))
}

func firstIPv4(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
