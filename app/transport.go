package app

import (
	"net/http"
	"time"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/feed"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport is the RoundTripper shared by the feed fetcher and every
// sender's HTTP client.
func NewTransport(lc fx.Lifecycle, log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		tpt.log.Sugar().Debugw("HTTP request failed", "method", req.Method, "host", req.URL.Host, "elapsed", elapsed, "err", err)
		return nil, err
	}
	tpt.log.Sugar().Debugw("HTTP request", "method", req.Method, "host", req.URL.Host, "status", resp.StatusCode, "elapsed", elapsed)
	return resp, nil
}

func NewFetcher(lc fx.Lifecycle, cfg *config.Config, transport http.RoundTripper) *feed.Fetcher {
	return feed.NewFetcher(transport, cfg.Fetch.UserAgent, cfg.Fetch.Timeout)
}
