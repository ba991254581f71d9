package main

import (
	"net"
	"net/url"
	"strings"
)

// wildcardHosts bind every interface; a client has to dial loopback instead.
var wildcardHosts = map[string]bool{"": true, "0.0.0.0": true, "::": true, "[::]": true}

// listenerURL renders a listen address as a URL that can be pasted into a
// browser or handed to a client.
func listenerURL(scheme, address, path string) string {
	return (&url.URL{Scheme: scheme, Host: dialableHost(address), Path: path}).String()
}

// dialableHost swaps a wildcard bind host for localhost and leaves anything
// it cannot split untouched.
func dialableHost(address string) string {
	address = strings.TrimSpace(address)
	host, port, err := net.SplitHostPort(address)
	switch {
	case address == "":
		return "localhost"
	case err != nil:
		return address
	case wildcardHosts[strings.TrimSpace(host)]:
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
