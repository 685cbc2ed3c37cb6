package server

import (
	"log/slog"
	"net"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"

	"github.com/izzyreal/wishjournal/internal/config"
	"github.com/izzyreal/wishjournal/internal/content"
	"github.com/izzyreal/wishjournal/internal/version"
)

const (
	mdnsService     = "_wishjournal._tcp"
	defaultHTTPPort = "8080"
)

// startMDNSAdvertiser announces the blog on the local network when enabled
// and returns a function that stops the announcement.
func startMDNSAdvertiser(cfg config.Config, lib *content.Library) func() {
	noop := func() {}
	if !cfg.MDNSEnable {
		return noop
	}
	port, err := strconv.Atoi(listenPortFromAddr(cfg.Addr))
	if err != nil || port <= 0 {
		slog.Warn("mdns advertise skipped: no usable port", "addr", cfg.Addr)
		return noop
	}

	instance := mdnsInstanceName(cfg.MDNSInstance)
	txt := blogTXTRecord(lib)
	service, err := mdns.NewMDNSService(instance, mdnsService, "", "", port, discoverAdvertiseIPs(), txt)
	if err != nil {
		slog.Error("mdns advertise service setup failed", "error", err)
		return noop
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		slog.Error("mdns advertise start failed", "error", err)
		return noop
	}
	slog.Info("mdns advertising enabled", "instance", instance, "port", port, "txt", txt)
	return func() { _ = server.Shutdown() }
}

func mdnsInstanceName(configured string) string {
	if name := strings.TrimSpace(configured); name != "" {
		return name
	}
	host, _ := os.Hostname()
	if host = strings.TrimSpace(host); host == "" {
		return "wishjournal"
	}
	return "wishjournal-" + host
}

// blogTXTRecord describes the blog to local browsers: how many posts it
// serves, the newest one and where to log in.
func blogTXTRecord(lib *content.Library) []string {
	txt := []string{
		"name=wishjournal",
		"version=" + version.Current(),
		"login=/auth/login",
	}
	if lib == nil {
		return append(txt, "posts=0")
	}
	posts := lib.Posts()
	txt = append(txt, "posts="+strconv.Itoa(len(posts)))
	if len(posts) > 0 {
		txt = append(txt, "latest=/post/"+posts[0].Slug)
	}
	return txt
}

func discoverAdvertiseIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		slog.Debug("mdns interface lookup failed", "error", err)
		return nil
	}
	return filterAdvertiseIPs(addrs)
}

// filterAdvertiseIPs keeps routable unicast addresses, IPv4 first, each
// family sorted and without duplicates.
func filterAdvertiseIPs(addrs []net.Addr) []net.IP {
	var picked []netip.Addr
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		if !slices.Contains(picked, ip) {
			picked = append(picked, ip)
		}
	}
	if len(picked) == 0 {
		return nil
	}
	slices.SortFunc(picked, func(a, b netip.Addr) int {
		if a.Is4() != b.Is4() {
			if a.Is4() {
				return -1
			}
			return 1
		}
		return strings.Compare(a.String(), b.String())
	})
	out := make([]net.IP, len(picked))
	for i, ip := range picked {
		out[i] = net.IP(ip.AsSlice())
	}
	return out
}

// listenPortFromAddr returns the port of a listen address, defaulting to
// 8080 when none is set and "" when the address cannot be parsed.
func listenPortFromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	switch {
	case addr == "":
		return defaultHTTPPort
	case !strings.Contains(addr, ":"):
		return addr
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return port
}
