package model

// Endpoint identifies the network context of a span. Any subset of fields may be set.
type Endpoint struct {
	ServiceName string `json:"serviceName,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port,omitempty"`
}

func (e *Endpoint) IsEmpty() bool {
	return e == nil || *e == Endpoint{}
}

// Service returns the service name, or "" for a nil endpoint.
func (e *Endpoint) Service() string {
	if e == nil {
		return ""
	}

	return e.ServiceName
}

// HasIP reports whether either address family is known.
func (e *Endpoint) HasIP() bool {
	return e != nil && (e.IPv4 != "" || e.IPv6 != "")
}

func (e *Endpoint) Clone() *Endpoint {
	if e == nil {
		return nil
	}

	c := *e

	return &c
}
