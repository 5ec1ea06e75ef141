// Package security は外部通信とユーザー入力に関するセキュリティ機能を提供する。
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

// OutboundGuard は外部メタデータサービスへの通信と、
// 外部から受け取ったURL（ポスター画像等）の検証を担う。
type OutboundGuard struct {
	allowedPorts []int
}

// NewOutboundGuard はOutboundGuardを生成する。
// 許可ポートは80と443のみ。
func NewOutboundGuard() *OutboundGuard {
	return &OutboundGuard{allowedPorts: []int{80, 443}}
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はプライベート・ループバック・リンクローカル等のネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// HTTPClient は外部サービス呼び出し用のHTTPクライアントを生成する。
// safeurlによりDNS解決後のIPアドレスも検証され、内部ネットワークへの接続は拒否される。
func (g *OutboundGuard) HTTPClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// CheckURL はURLを静的に検証する。DNS解決は行わない。
// http/https以外のスキーム、空ホスト、内部アドレス、localhostを拒否する。
func (g *OutboundGuard) CheckURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNetworks {
			if n.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}

	return nil
}

// SafePublicURL はCheckURLを通過したURLのみを返し、それ以外は空文字列を返す。
func (g *OutboundGuard) SafePublicURL(rawURL string) string {
	if g.CheckURL(rawURL) != nil {
		return ""
	}
	return rawURL
}
