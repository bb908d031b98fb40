// unity-bridge — local control-plane daemon between unityctl clients and a
// running Unity editor. Exposes the editor's operations as a loopback HTTP
// API and owns the WebSocket peering with the editor plugin.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DirtybitGames/unityctl-sub001/pkg/api"
	"github.com/DirtybitGames/unityctl-sub001/pkg/bridge"
	"github.com/DirtybitGames/unityctl-sub001/pkg/config"
	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
	"github.com/DirtybitGames/unityctl-sub001/pkg/version"
)

func main() {
	projectFlag := flag.String("project", "", "Path to the Unity project (overrides auto-discovery)")
	portFlag := flag.Int("port", 0, "HTTP port to listen on (0 = ephemeral)")
	flag.Parse()

	// Resolve the project before anything else; every other path hangs off it.
	projectPath, err := resolveProject(*projectFlag)
	if err != nil {
		slog.Error("Project validation failed", "error", err)
		os.Exit(1)
	}
	projectID := config.ProjectID(projectPath)

	// Load per-project environment overrides.
	envPath := filepath.Join(config.ConfigDir(projectPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "path", envPath)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting unity-bridge",
		"version", version.Full(),
		"project", projectPath,
		"project_id", projectID)

	ctx := context.Background()

	// Refuse to start over a live bridge for the same project.
	if existing, err := config.ReadBridgeFile(projectPath); err == nil {
		if reported, err := config.ProbeBridge(ctx, existing.Port); err == nil && reported == projectID {
			slog.Error("Another bridge is already running for this project",
				"port", existing.Port, "pid", existing.PID)
			os.Exit(1)
		}
		slog.Info("Found stale bridge.json, taking over", "port", existing.Port)
	}

	// Wire the core: log store, registries, reload coordination, peering,
	// dispatch.
	logs := logstore.NewStore(logstore.DefaultCapacity)
	requests := bridge.NewRequestRegistry()
	waiters := bridge.NewEventWaiterRegistry()
	reload := bridge.NewReloadCoordinator(bridge.DefaultReloadGrace, requests, waiters)
	manager := bridge.NewConnectionManager(bridge.Identity{
		ProjectID: projectID,
		Version:   version.GitCommit,
	}, reload, requests, waiters, logs)

	timeouts := config.LoadTimeouts(projectPath)
	dispatcher := bridge.NewDispatcher(manager, requests, waiters, timeouts)

	server := api.NewServer(projectID, manager, dispatcher, requests, waiters, reload, logs)

	// Loopback only; no authentication by design.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *portFlag))
	if err != nil {
		slog.Error("Failed to bind listener", "port", *portFlag, "error", err)
		os.Exit(1)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := server.StartWithListener(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// Publish the contact file only once the listener demonstrably serves.
	readyCtx, readyCancel := context.WithTimeout(ctx, 5*time.Second)
	defer readyCancel()
	if err := config.WaitReady(readyCtx, port); err != nil {
		slog.Error("Server never became ready", "error", err)
		os.Exit(1)
	}
	if err := config.WriteBridgeFile(projectPath, config.BridgeFile{
		ProjectID: projectID,
		Port:      port,
		PID:       os.Getpid(),
	}); err != nil {
		slog.Error("Failed to write bridge.json", "error", err)
		os.Exit(1)
	}

	slog.Info("unity-bridge started", "port", port, "project_id", projectID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Resolve in-flight work, drop the peer, then drain HTTP.
	requests.CancelAll()
	waiters.CancelAll()
	manager.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := config.RemoveBridgeFile(projectPath); err != nil {
		slog.Warn("Could not remove bridge.json", "error", err)
	}

	slog.Info("Shutdown complete")
}

// resolveProject validates the --project flag or walks up from the working
// directory to find a Unity project root.
func resolveProject(flagValue string) (string, error) {
	if flagValue != "" {
		abs, err := filepath.Abs(flagValue)
		if err != nil {
			return "", fmt.Errorf("resolve project path: %w", err)
		}
		if !config.IsUnityProject(abs) {
			return "", fmt.Errorf("%s is not a Unity project (missing Assets/ or ProjectSettings/)", abs)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return config.DiscoverProject(cwd)
}
