package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/voicegate/voicegate/pkg/gateway/config"
	gatewayserver "github.com/voicegate/voicegate/pkg/gateway/server"
)

func testDeps(t *testing.T, sigCh chan os.Signal) gatewayDeps {
	t.Helper()

	// Bind to an ephemeral port so parallel test runs don't collide.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	t.Setenv("VOICEGATE_ADDR", addr)

	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, _ ...os.Signal) {
			go func() {
				for sig := range sigCh {
					c <- sig
				}
			}()
		},
		signalStop: func(chan<- os.Signal) {},
	}
}

func TestRunGatewayMissingDeps(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []gatewayDeps{
		{},
		{loadConfig: config.LoadFromEnv},
		{loadConfig: config.LoadFromEnv, newGateway: gatewayserver.New},
	}
	for i, deps := range cases {
		if err := runGateway(context.Background(), logger, deps); err == nil {
			t.Fatalf("case %d: runGateway accepted incomplete deps", i)
		}
	}
}

func TestRunGatewayConfigError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := defaultGatewayDeps()
	deps.loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("bad env")
	}

	err := runGateway(context.Background(), logger, deps)
	if err == nil || err.Error() != "load config: bad env" {
		t.Fatalf("err = %v", err)
	}
}

func TestRunGatewayShutsDownOnSignal(t *testing.T) {
	t.Setenv("VOICEGATE_SHUTDOWN_GRACE_PERIOD", "2s")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sigCh := make(chan os.Signal, 1)
	deps := testDeps(t, sigCh)

	done := make(chan error, 1)
	go func() { done <- runGateway(context.Background(), logger, deps) }()

	// Let the listener come up, then signal.
	time.Sleep(100 * time.Millisecond)
	sigCh <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runGateway: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down after signal")
	}
}
