package model

import (
	"net"
	"strconv"
)

// Instance describes one independently running Tor daemon process.
// Instances are discovered once at startup by probing the SOCKS port
// range and are immutable afterward.
type Instance struct {
	// ID is the 1-based instance identifier.
	ID int `json:"instance_id"`

	// SocksPort is the data-channel (SOCKS5) port.
	SocksPort int `json:"socks_port"`

	// ControlPort is the control-channel port.
	ControlPort int `json:"control_port"`

	// Host is the daemon host, normally 127.0.0.1.
	Host string `json:"host"`
}

// SocksAddr returns the data-channel address in host:port form.
func (i Instance) SocksAddr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.SocksPort))
}

// ControlAddr returns the control-channel address in host:port form.
func (i Instance) ControlAddr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.ControlPort))
}
