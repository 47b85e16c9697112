// Package http builds the proxy-aware net/http clients used to talk to Girder.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/whole-tale/girder-wt-data-manager/internal/config"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
)

// NewClient returns the client shared by reads and commands.
//
// HTTP/2 is negotiated when talking to Girder directly. It is turned off
// whenever a proxy is in play, or when DISABLE_HTTP2=true, since proxies
// commonly mishandle multiplexed streams.
func NewClient(cfg *config.Config, log *logging.Logger) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg, log)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it as HTTP/1.1
		return client, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return client, nil
}

func proxyActive(cfg *config.Config) bool {
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}
