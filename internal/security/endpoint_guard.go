package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// EndpointGuard は外部APIへの送信先を制限する。
// 設定された送信先URLの静的検証と、SSRF防止付きHTTPクライアントの生成を行う。
type EndpointGuard struct {
	allowedHosts []string
}

// NewEndpointGuard はEndpointGuardを生成する。
// allowedHostsが空の場合はホスト名による制限を行わない。
func NewEndpointGuard(allowedHosts ...string) *EndpointGuard {
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts = append(hosts, strings.ToLower(h))
	}
	return &EndpointGuard{allowedHosts: hosts}
}

// NewClient はSSRF防止機能付きのHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、プライベートIP、ループバック、リンクローカル宛ては
// DNS解決後のIPアドレスでブロックされる。
func (g *EndpointGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// Validate は送信先URLを検証する。DNS解決は行わない。
func (g *EndpointGuard) Validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty endpoint URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("endpoint must use https: %s", rawURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in endpoint URL: %s", rawURL)
	}
	if host == "localhost" {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
	}

	if len(g.allowedHosts) > 0 && !g.hostAllowed(host) {
		return fmt.Errorf("host not in allow list: %s", host)
	}
	return nil
}

func (g *EndpointGuard) hostAllowed(host string) bool {
	for _, allowed := range g.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
