package cli

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kartoza/aviation-risk/internal/config"
	"github.com/kartoza/aviation-risk/internal/explain"
	"github.com/kartoza/aviation-risk/internal/inference"
	"github.com/kartoza/aviation-risk/internal/metrics"
	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/samples"
	"github.com/kartoza/aviation-risk/internal/server"
)

const windowTitle = "Aviation Risk Assessment System"

func newServeCommand(version string, openWindow WindowFunc) *cobra.Command {
	d := config.Defaults()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assessment web application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, version)
			if err != nil {
				return err
			}
			win := openWindow
			if cfg.Headless {
				win = nil
			}
			return runServe(cmd, cfg, win)
		},
	}

	f := cmd.Flags()
	f.Int("port", d.Port, "HTTP server port")
	f.String("samples-dir", d.SamplesDir, "Directory of sample flight records")
	f.String("input", d.InputPath, "Record shown when no samples are available")
	f.Bool("watch-artifact", d.WatchArtifact, "Reload the artifact when the file changes")
	f.Bool("headless", d.Headless, "Run in headless mode (no GUI window)")
	return cmd
}

// newService loads the artifact and builds the scoring service
func newService(cfg config.Config, m *metrics.Collector) (*inference.Service, error) {
	hook := func(l *pipeline.Loaded, err error) {
		if l == nil {
			m.ObserveArtifactLoad(0, time.Now(), err)
			return
		}
		m.ObserveArtifactLoad(l.Pipeline.Pre.Width(), l.LoadedAt, nil)
	}
	reg, err := pipeline.NewRegistry(cfg.ArtifactPath, hook)
	if err != nil {
		return nil, err
	}

	mode, err := explain.ParseNameMode(cfg.NameMode)
	if err != nil {
		return nil, err
	}
	return inference.NewService(reg, inference.Options{
		Resolver: explain.Resolver{Mode: mode},
		Metrics:  m,
	}), nil
}

func runServe(cmd *cobra.Command, cfg config.Config, openWindow WindowFunc) error {
	m := metrics.New()
	svc, err := newService(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	catalog, err := samples.NewCatalog(cfg.SamplesDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.SamplesDir).Msg("samples not available, the page will show the input file")
		catalog = nil
	}

	// Find an available port (try up to 10 ports starting from the requested one)
	port, err := findAvailablePort(cfg.Port, 10)
	if err != nil {
		return err
	}
	if port != cfg.Port {
		log.Warn().Msgf("Port %d in use, using port %d instead", cfg.Port, port)
	}
	cfg.Port = port

	log.Info().
		Str("version", cfg.Version).
		Int("port", cfg.Port).
		Str("artifact", cfg.ArtifactPath).
		Str("name_mode", cfg.NameMode).
		Msg("aviation-risk starting")

	srv, err := server.New(cfg, svc, catalog, m)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.WatchArtifact {
		go func() {
			if err := svc.Registry().Watch(ctx); err != nil {
				log.Error().Err(err).Msg("artifact watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(serverURL, 10*time.Second)

	if openWindow == nil {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return srv.Stop()
		}
	}

	// When the window closes, shut down the server
	done := make(chan struct{})
	go func() {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server error")
			}
		case <-ctx.Done():
			log.Info().Msg("received shutdown signal")
		}
		close(done)
	}()

	log.Info().Msg("opening application window")
	if err := openWindow(windowTitle, serverURL, done); err != nil {
		log.Error().Err(err).Msg("application window failed")
	}

	log.Info().Msg("window closed, shutting down server")
	return srv.Stop()
}

// waitForServer polls until the server is accepting connections
func waitForServer(url string, timeout time.Duration) bool {
	addr := url[len("http://"):]
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Warn().Msgf("server may not be ready at %s", url)
	return false
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
