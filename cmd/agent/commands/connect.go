package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"realtime-voice-agent/backend/internal/agent"
	"realtime-voice-agent/backend/internal/render"
	"realtime-voice-agent/backend/internal/ws"
	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/logger"
	"realtime-voice-agent/backend/shared/observability"
)

const clearScreen = "\033[H\033[2J"

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the agent and show the transcript",
	Long: `Connect to the realtime agent and render the conversation until
interrupted.

A transcript feed is served on --feed when set; clients receive a
snapshot frame after every change.

Examples:
  agent connect
  agent connect --transport websocket --feed :8090`,
	RunE: runConnect,
}

func init() {
	cfg := config.Get()
	connectCmd.Flags().String("transport", cfg.Agent.Transport, "peer transport: webrtc or websocket")
	connectCmd.Flags().String("feed", cfg.Agent.FeedAddr, "address for the transcript feed server (empty disables it)")
	connectCmd.Flags().Duration("timeout", 30*time.Second, "connection setup timeout")
	connectCmd.Flags().Int("width", 80, "wrap width for message text")
	connectCmd.Flags().Bool("plain", false, "append frames instead of redrawing the screen")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := newLogger(cfg)

	transport, _ := cmd.Flags().GetString("transport")
	feedAddr, _ := cmd.Flags().GetString("feed")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	width, _ := cmd.Flags().GetInt("width")
	plain, _ := cmd.Flags().GetBool("plain")

	dialer, err := newDialer(transport, cfg, log)
	if err != nil {
		return err
	}

	metrics, err := observability.SetupMetrics("realtime-voice-agent", cfg.Observability.MetricsEnabled)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	defer metrics.Shutdown(context.Background())

	session := agent.NewSession(
		agent.NewBrokerClient(brokerURL, nil),
		dialer,
		agent.WithSessionLogger(log),
		agent.WithMetrics(metrics),
	)
	defer session.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if feedAddr != "" {
		srv := startFeed(ctx, feedAddr, session, metrics, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	renderer := render.New("Realtime voice agent", width)
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			if !plain {
				fmt.Fprint(cmd.OutOrStdout(), clearScreen)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderer.Render(snap))
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	err = session.Connect(connectCtx)
	cancel()
	if err != nil {
		unsubscribe()
		<-done
		return errors.New(agent.UserMessage(err))
	}

	<-ctx.Done()
	session.Disconnect()
	unsubscribe()
	<-done
	return nil
}

func startFeed(ctx context.Context, addr string, src ws.SnapshotSource, metrics *observability.Metrics, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	hub := ws.NewHub(log, metrics)
	go hub.Run(ctx)
	go hub.Follow(ctx, src)

	engine := ws.NewRouter(hub, src, log)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("transcript feed listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "transcript feed stopped")
		}
	}()
	return srv
}
