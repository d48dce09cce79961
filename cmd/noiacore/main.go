// Command noiacore runs the always-listening core: Wake Stage, Realtime
// Agent Core, and Device Coordinator, wired together by the Supervisor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"github.com/corevox/noia/internal/appconfig"
	"github.com/corevox/noia/internal/audioio"
	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/debugapi"
	"github.com/corevox/noia/internal/device"
	"github.com/corevox/noia/internal/logging"
	"github.com/corevox/noia/internal/memoryitem"
	"github.com/corevox/noia/internal/models"
	"github.com/corevox/noia/internal/realtime"
	"github.com/corevox/noia/internal/supervisor"
	"github.com/corevox/noia/internal/vad"
)

const (
	captureSampleRateHz = 16000
	outputSampleRateHz  = 24000
	vadModelFileName    = "silero_vad.onnx"
)

var (
	configPath   string
	logLevel     string
	modelsDir    string
	debugAddr    string
	manifestPath string
	onnxLibPath  string
)

func main() {
	root := &cobra.Command{
		Use:   "noiacore",
		Short: "Always-listening voice assistant core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the App Configuration YAML file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&modelsDir, "models-dir", "", "directory holding provisioned ONNX models (default: XDG data dir)")
	root.PersistentFlags().StringVar(&debugAddr, "debug-addr", ":8090", "address for the debug HTTP API")
	root.PersistentFlags().StringVar(&onnxLibPath, "onnx-lib", "", "path to the ONNX Runtime shared library (default: system search path)")

	root.AddCommand(runCmd(), validateConfigCmd(), provisionModelsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultConfigPath honors $NOIA_CONFIG before falling back to ./noia.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("NOIA_CONFIG"); p != "" {
		return p
	}
	return "noia.yaml"
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the core and keep running until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the App Configuration without starting the core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: %d agent(s) configured\n", len(cfg.Agents))
			return nil
		},
	}
}

func provisionModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision-models",
		Short: "Download and verify the ONNX models named in a manifest file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return provisionModels(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "models-manifest.yaml", "YAML file listing the models to provision")
	return cmd
}

type manifestFile struct {
	Models []models.ModelManifest `yaml:"models"`
}

func provisionModels(ctx context.Context) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return err
	}

	dir, err := resolveModelsDir()
	if err != nil {
		return err
	}

	return models.EnsureModels(ctx, dir, mf.Models, func(p models.DownloadProgress) {
		if p.Error != "" {
			fmt.Printf("%s: error: %s\n", p.Model, p.Error)
			return
		}
		if p.Done {
			fmt.Printf("%s: ready (%d bytes)\n", p.Model, p.Total)
			return
		}
		fmt.Printf("%s: %d/%d bytes\n", p.Model, p.Downloaded, p.Total)
	})
}

func resolveModelsDir() (string, error) {
	if modelsDir != "" {
		if err := os.MkdirAll(modelsDir, 0o755); err != nil {
			return "", err
		}
		return modelsDir, nil
	}
	return models.ModelsDir()
}

func run() error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(logLevel, os.Stderr)

	dir, err := resolveModelsDir()
	if err != nil {
		return err
	}
	if onnxLibPath != "" {
		onnxruntime_go.SetSharedLibraryPath(onnxLibPath)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		log.WithError(err).Warn("onnx runtime environment already initialized or unavailable")
	}

	b := bus.New(log)
	watcher := appconfig.NewWatcher(configPath, cfg, b, log)
	coordinator := device.New(b, nil, nil, nil)
	memStore := memoryitem.NewStore(cfg.MemoryCap)
	client := realtime.NewClient("wss://api.openai.com/v1/realtime", cfg.RemoteAPIKey)
	recorder := debugapi.NewRecorder(b, 200)

	vadModelPath := filepath.Join(dir, vadModelFileName)

	var manifests []models.ModelManifest
	if data, err := os.ReadFile(manifestPath); err == nil {
		var mf manifestFile
		if err := yaml.Unmarshal(data, &mf); err == nil {
			manifests = mf.Models
		}
	}

	sup := supervisor.New(b, log, watcher, supervisor.Deps{
		NewCapturer: func() (audioio.Capturer, error) {
			return audioio.NewMalgoCapturer(captureSampleRateHz), nil
		},
		NewRenderer: func() (audioio.Renderer, error) {
			return audioio.NewOtoRenderer(outputSampleRateHz), nil
		},
		NewVAD: func() (vad.Detector, error) {
			return vad.NewSileroDetector(vadModelPath)
		},
		RealtimeClient: client,
		Device:         coordinator,
		Memory:         memStore,
		ModelManifests: manifests,
		ModelsDir:      dir,
	})

	debugSrv := debugapi.New(debugapi.Handlers{Recorder: recorder, State: sup})
	debugHTTPServer := &http.Server{
		Addr:              debugAddr,
		Handler:           debugSrv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		log.WithField("addr", debugAddr).Info("debug API listening")
		if err := debugHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		errCh <- watcher.Run(ctx)
	}()
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		errCh <- sup.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.WithError(err).Error("component exited")
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	}

	b.PublishFrom(bus.KindShutdown, "main")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := debugHTTPServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("debug API graceful shutdown failed")
		_ = debugHTTPServer.Close()
	}

	select {
	case <-supDone:
	case <-shutdownCtx.Done():
		log.Warn("supervisor did not stop within the shutdown timeout")
	}

	return nil
}
