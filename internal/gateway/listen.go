package gateway

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// bindHosts maps gateway.bind to a listen host. Unknown modes fall back to
// loopback; "custom" uses gateway.customBindHost.
var bindHosts = map[string]string{
	"loopback": "127.0.0.1",
	"lan":      "0.0.0.0",
	"custom":   "0.0.0.0",
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	host, ok := bindHosts[cfg.Bind]
	if !ok {
		host = bindHosts["loopback"]
	}
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" {
		host = cfg.CustomBindHost
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// listen opens the gateway listener, wrapped in TLS when configured.
func listen(cfg config.GatewayConfig, log *logging.Logger) (net.Listener, error) {
	addr := resolveBindAddr(cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if !cfg.TLS.Enabled {
		if cfg.Bind != "loopback" {
			log.Warn().Msg("TLS is not enabled, credentials travel in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}
