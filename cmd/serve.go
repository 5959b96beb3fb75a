package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dupsieve/internal/server"
)

var (
	servePort      int
	serveTimeout   time.Duration
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local API for browsing, scanning and cleaning duplicates",
	Long: `Start a local HTTP server exposing the stored results.

The server provides:
- GET  /api/groups?kind=similar|exact   duplicate groups of the last scan
- GET  /api/scan                        the last recorded scan
- POST /api/clean                       process selected groups
- GET  /api/image/{id}                  the image file of a record
- /ws                                   scans with live progress

It shuts down after the idle timeout unless a client reports an active tab.

Example:
  dupsieve serve                # Start on default port 8080
  dupsieve serve -p 3000        # Use custom port
  dupsieve serve --timeout 10m  # 10 minute idle timeout`,
	RunE: runServe,
}

func init() {
	cfg.BindFlags(serveCmd.Flags())
	cfg.BindActionFlags(serveCmd.Flags())
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Minute, "Idle timeout (0 to disable)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "Don't open browser automatically")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(store, cfg,
		server.WithAddr(fmt.Sprintf("127.0.0.1:%d", servePort)),
		server.WithIdleTimeout(serveTimeout),
		server.WithLogger(slog.Default()))

	url := fmt.Sprintf("http://localhost:%d/api/groups", servePort)
	fmt.Printf("Starting server at %s\n", url)
	fmt.Printf("Idle timeout: %v (resets on activity, pauses when tab is active)\n", serveTimeout)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Open browser
	if !serveNoBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Run(); err != nil {
		slog.Debug("failed to open browser", "error", err)
	}
}
