package server_test

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/testhelpers"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

type relay struct {
	server *server.Server
	chat   *chat.Service
	http   *httptest.Server
}

// newRelay starts a relay behind an httptest server. customize may adjust
// the configuration before the server is built.
func newRelay(t *testing.T, customize func(*server.Config)) *relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	svc := chat.New(log, cfg.ClaimTTL)
	srv := server.New(cfg, log, svc)
	ts := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		_ = srv.Shutdown(2 * time.Second)
		ts.Close()
	})

	return &relay{server: srv, chat: svc, http: ts}
}

func (r *relay) URL() string { return r.http.URL }

// waitOffline blocks until name no longer holds a session.
func (r *relay) waitOffline(t *testing.T, name string) {
	t.Helper()
	testhelpers.Eventually(t, func() bool {
		return !lo.Contains(r.chat.Online(), name)
	}, name+" should go offline")
}
