package control

import "encoding/json"

// VersionInfo is the kernel's /version response.
type VersionInfo struct {
	Version string `json:"version"`
	Meta    bool   `json:"meta"`
}

// TunConfig is the kernel's TUN stack state.
type TunConfig struct {
	Enable bool `json:"enable"`
}

// CoreConfig is the kernel's effective runtime configuration. Only the
// fields the manager reads are modeled; the kernel returns more.
type CoreConfig struct {
	Port      int        `json:"port"`
	SocksPort int        `json:"socks-port"`
	MixedPort int        `json:"mixed-port"`
	AllowLan  bool       `json:"allow-lan"`
	Mode      string     `json:"mode"`
	LogLevel  string     `json:"log-level"`
	IPv6      bool       `json:"ipv6"`
	Tun       *TunConfig `json:"tun,omitempty"`
}

// ConfigPatch is a partial update of the kernel configuration. Nil fields
// are omitted from the PATCH body and left unchanged by the kernel.
type ConfigPatch struct {
	Mode      *string    `json:"mode,omitempty"`
	Tun       *TunConfig `json:"tun,omitempty"`
	AllowLan  *bool      `json:"allow-lan,omitempty"`
	IPv6      *bool      `json:"ipv6,omitempty"`
	MixedPort *int       `json:"mixed-port,omitempty"`
}

// DelayPoint is one historical delay measurement for a proxy node.
type DelayPoint struct {
	Time  string `json:"time"`
	Delay int    `json:"delay"`
}

// Proxy is one node or group from /proxies. Selector groups carry All and
// Now; plain nodes do not.
type Proxy struct {
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	UDP     bool         `json:"udp"`
	History []DelayPoint `json:"history"`
	Now     string       `json:"now,omitempty"`
	All     []string     `json:"all,omitempty"`
}

// IsSelector reports whether the proxy is a user-selectable group.
func (p *Proxy) IsSelector() bool {
	return p.Type == "Selector"
}

type proxiesResponse struct {
	Proxies map[string]Proxy `json:"proxies"`
}

// ConnectionMetadata describes the endpoints of one tracked connection.
type ConnectionMetadata struct {
	Network         string `json:"network"`
	Type            string `json:"type"`
	SourceIP        string `json:"sourceIP"`
	DestinationIP   string `json:"destinationIP"`
	SourcePort      string `json:"sourcePort"`
	DestinationPort string `json:"destinationPort"`
	Host            string `json:"host"`
}

// Connection is one live connection tracked by the kernel.
type Connection struct {
	ID       string             `json:"id"`
	Metadata ConnectionMetadata `json:"metadata"`
	Upload   int64              `json:"upload"`
	Download int64              `json:"download"`
	Start    string             `json:"start"`
	Chains   []string           `json:"chains"`
	Rule     string             `json:"rule"`
}

// ConnectionsInfo is the /connections snapshot, including the cumulative
// byte totals the traffic sampler polls.
type ConnectionsInfo struct {
	DownloadTotal int64        `json:"downloadTotal"`
	UploadTotal   int64        `json:"uploadTotal"`
	Connections   []Connection `json:"connections"`
}

// Rule is one routing rule from /rules.
type Rule struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Proxy   string `json:"proxy"`
}

type rulesResponse struct {
	Rules []Rule `json:"rules"`
}

// Provider is one proxy or rule provider from /providers.
type Provider struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	VehicleType string          `json:"vehicleType"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
	Proxies     json.RawMessage `json:"proxies,omitempty"`
	Behavior    string          `json:"behavior,omitempty"`
	RuleCount   int             `json:"ruleCount,omitempty"`
}

type providersResponse struct {
	Providers map[string]Provider `json:"providers"`
}
