// Command callkit joins a voice call with an agent and prints the session's
// events. Lines typed on stdin are sent to the agent as chat; /mute, /unmute
// and /quit control the call.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"callkit"
	"callkit/config"
	"callkit/controlplane"
	"callkit/core"
	"callkit/observability"
	"callkit/session"
	"callkit/transports/livekit"
)

func main() {
	var (
		agentID    string
		monitorURL string
		testMode   bool
		identity   string
	)
	flag.StringVar(&agentID, "agent", "", "agent id to call (overrides CALLKIT_AGENT_ID)")
	flag.StringVar(&monitorURL, "monitor", "", "WebSocket URL of the event monitor (overrides CALLKIT_MONITOR_URL)")
	flag.BoolVar(&testMode, "test", false, "negotiate against the preview endpoint")
	flag.StringVar(&identity, "identity", "", "participant identity when minting a local LiveKit token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	core.SetLogger(core.NewDevelopmentLogger(os.Stderr, core.ParseLevel(cfg.LogLevel)))
	logger := core.GetLogger().Component("cli")

	if agentID != "" {
		cfg.AgentID = agentID
	}
	if monitorURL != "" {
		cfg.MonitorURL = monitorURL
	}
	cfg.TestMode = cfg.TestMode || testMode

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, logger)
	}

	sessionOpts := []session.Option{
		session.WithRetryDelay(cfg.RetryDelay),
		session.WithMaxAttempts(cfg.MaxAttempts),
		session.WithCallLogDir(cfg.LogDir),
	}

	var relay *controlplane.Client
	if cfg.MonitorURL != "" {
		relay = controlplane.NewClient(controlplane.ClientConfig{
			ConnectURL: cfg.MonitorURL,
			AgentID:    cfg.AgentID,
			Version:    "1.0.0",
			Metadata: map[string]string{
				"hostname": func() string { h, _ := os.Hostname(); return h }(),
			},
			Logger: logger,
		})
		if err := relay.Connect(ctx); err != nil {
			logger.Error("failed to connect to monitor, continuing without relay", "error", err)
			relay = nil
		} else {
			defer relay.Close()
			sessionOpts = append(sessionOpts, session.WithLogWriter(controlplane.NewWSLogWriter(relay, "")))
		}
	}

	client := callkit.New(cfg.APIKey, callkit.WithBaseURL(cfg.APIURL), callkit.WithLogger(core.GetLogger()))
	s := client.NewSession(sessionOpts...)
	printEvents(s)
	if relay != nil {
		detach := relay.Relay(s)
		defer detach()
		go func() {
			select {
			case <-relay.Done():
				logger.Info("monitor connection lost")
			case <-ctx.Done():
			}
		}()
	}

	opts, err := connectOptions(cfg, identity)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := s.Connect(ctx, opts); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	go readInput(ctx, cancel, s, logger)

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	s.Disconnect(shutdownCtx)
}

// connectOptions builds the connect request from configuration. With LiveKit
// credentials in the settings file the call joins that room directly.
func connectOptions(cfg config.Config, identity string) (session.ConnectOptions, error) {
	opts := session.ConnectOptions{
		AgentID:     cfg.AgentID,
		Metadata:    cfg.Settings.Metadata,
		Environment: cfg.Settings.Environment,
		Test:        cfg.TestMode,
		Audio:       cfg.Settings.Audio,
	}
	if cfg.Settings.Config != nil {
		opts.Config = cfg.Settings.Config
	}

	lk := cfg.Settings.LiveKit
	if !lk.Enabled() {
		return opts, nil
	}
	if identity == "" {
		identity = lk.Identity
	}
	if identity == "" {
		identity = "callkit-" + getEnv("USER", "cli")
	}
	token, err := livekit.DevToken{
		APIKey:    lk.APIKey,
		APISecret: lk.APISecret,
		Room:      lk.Room,
		Identity:  identity,
	}.JWT()
	if err != nil {
		return opts, err
	}
	opts.ServerURL = lk.URL
	opts.ParticipantToken = token
	opts.CallID = lk.Room
	return opts, nil
}

func serveMetrics(addr string, logger *core.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

func printEvents(s *callkit.Session) {
	s.OnStatusChange(func(st session.Status) {
		switch {
		case st.Connected:
			fmt.Printf("* connected (call %s)\n", st.CallID)
		case st.Connecting:
			fmt.Println("* connecting...")
		case st.Error != "":
			fmt.Printf("* error: %s\n", st.Error)
		default:
			fmt.Println("* disconnected")
		}
	})
	s.OnAgentStateChange(func(state session.AgentState) {
		fmt.Printf("* agent %s\n", state)
	})
	s.OnTranscription(func(seg session.TranscriptionSegment) {
		if seg.IsFinal {
			fmt.Printf("%s: %s\n", seg.Role, seg.Text)
		}
	})
	s.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	})
	s.OnMicrophoneStateChange(func(st session.MicrophoneState) {
		fmt.Printf("* microphone enabled=%t muted=%t\n", st.Enabled, st.Muted)
	})
}

func readInput(ctx context.Context, cancel context.CancelFunc, s *callkit.Session, logger *core.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch line {
		case "":
			continue
		case "/quit":
			cancel()
			return
		case "/mute":
			err = s.SetMicrophoneEnabled(ctx, false)
		case "/unmute":
			err = s.SetMicrophoneEnabled(ctx, true)
		default:
			err = s.SendMessage(ctx, line)
		}
		if err != nil {
			logger.Warn("command failed", "input", line, "error", err)
		}
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
