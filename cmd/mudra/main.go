// Command mudra captures hand landmarks from the camera, classifies sign
// sequences through a remote model and speaks the recognized labels.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/practice"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to the YAML config file")
	autoStart := flag.Bool("start", false, "Start recognizing immediately")
	noTray := flag.Bool("no-tray", false, "Run without the system tray icon")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
	if *noTray {
		cfg.Tray.Enabled = false
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *autoStart); err != nil {
		logger.WithError(err).Fatal("mudra stopped")
	}
}

func defaultConfigPath() string {
	p, err := config.ExpandHome("~/.mudra/config.yaml")
	if err != nil {
		return ""
	}
	return p
}

func run(cfg *config.Config, logger *logrus.Logger, autoStart bool) error {
	log := logging.Component(logger, "main")
	log.WithField("version", version).Info("mudra starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observe.DefaultMetrics()
	var provider *observe.Provider
	if cfg.Metrics.Enabled {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer p.Shutdown(context.Background())
		if metrics, err = observe.NewMetrics(p.MeterProvider()); err != nil {
			return fmt.Errorf("create instruments: %w", err)
		}
		provider = p
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var speaker speech.Speaker
	if cs, err := speech.Detect(cfg.Speech.Engine, logging.Component(logger, "speech")); err != nil {
		log.WithError(err).Warn("speech disabled")
	} else {
		defer cs.Close()
		speaker = cs
	}

	sess := session.New(
		classifier.New(classifier.Config{Endpoint: cfg.Classifier.Endpoint, Timeout: cfg.Classifier.Timeout}),
		speaker,
		session.Config{
			WindowLength:        cfg.Session.WindowLength,
			ThrottleInterval:    cfg.Session.ThrottleInterval,
			ConfidenceThreshold: cfg.Session.ConfidenceThreshold,
			DiscardStaleOnGap:   cfg.Session.DiscardStaleOnGap,
			Speech: speech.ControllerConfig{
				Voice:           cfg.Speech.Voice(),
				Interrupt:       cfg.Speech.Interrupt,
				GateOnThreshold: cfg.Speech.GateOnThreshold,
			},
			Metrics: metrics,
			Logger:  logging.Component(logger, "session"),
		},
	)

	det := newDetector(cfg.Detector, log)

	plugins := plugin.NewManager(cfg.Plugins.Dir, logging.Component(logger, "plugin"))
	if err := plugins.Discover(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	}

	hub := server.NewHub(logging.Component(logger, "feedback"))
	publishers := app.Publishers{hub}

	var tr *tray.Tray
	if cfg.Tray.Enabled {
		tr = tray.New()
		publishers = append(publishers, trayPublisher{tr})
	}

	a := app.New(app.Config{
		Camera:    capture.NewCamera(cfg.Camera.Capture()),
		Detector:  det,
		Session:   sess,
		Store:     st,
		Plugins:   plugins,
		Executor:  plugin.NewExecutor(cfg.Plugins.Timeout, logging.Component(logger, "plugin")),
		Publisher: publishers,
		Practice: practice.Config{
			WordTimeLimit:  cfg.Practice.WordTimeLimit,
			PassConfidence: cfg.Practice.PassConfidence,
		},
		Metrics: metrics,
		Logger:  logging.Component(logger, "app"),
	})
	defer a.Close()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.WithField("dir", staticDir).Info("serving static files")
	}

	srvCfg := server.Config{
		App:       a,
		Store:     st,
		Hub:       hub,
		StaticDir: staticDir,
		Metrics:   metrics,
		Logger:    logging.Component(logger, "http"),
	}
	if provider != nil {
		srvCfg.MetricsHandler = provider.Handler()
	}
	srv := server.New(srvCfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		// The server stays up without a camera so history and settings
		// remain reachable.
		if err := a.Run(gctx); err != nil {
			log.WithError(err).Error("capture loop failed")
		}
		return nil
	})

	if autoStart {
		if _, err := a.Start(gctx); err != nil {
			log.WithError(err).Warn("failed to start recognition")
		}
	}

	if tr == nil {
		return g.Wait()
	}

	tr.OnToggle(func() (bool, error) {
		running, err := a.Toggle(gctx)
		if err != nil {
			log.WithError(err).Warn("failed to toggle recognition")
		}
		return running, err
	})
	tr.OnSettings(func() { openBrowser(settingsURL(cfg.Server.ListenAddr), log) })
	tr.OnQuit(cancel)
	tr.SetRunning(sess.Running())

	go func() {
		<-gctx.Done()
		tr.Quit()
	}()
	// The tray owns the main thread until it quits.
	tr.Run()
	cancel()
	return g.Wait()
}

func newDetector(cfg config.DetectorConfig, log *logrus.Entry) detector.Detector {
	d, err := detector.NewMediaPipeDetector(detector.Config{
		MaxHands:        cfg.MaxHands,
		MinConfidence:   cfg.MinDetectionConfidence,
		MinTrackingConf: cfg.MinTrackingConfidence,
		ScriptPath:      cfg.ScriptPath,
		PythonPath:      cfg.PythonPath,
	})
	if err != nil {
		log.WithError(err).Warn("MediaPipe unavailable, hand detection disabled")
		return detector.NewMockDetector()
	}
	return d
}

// trayPublisher keeps the tray menu in step with the session.
type trayPublisher struct {
	tray *tray.Tray
}

func (p trayPublisher) Publish(kind string, payload any) {
	switch ev := payload.(type) {
	case app.SessionEvent:
		p.tray.SetRunning(ev.Running)
	case session.Prediction:
		if ev.Spoken {
			p.tray.SetLastSpoken(ev.Label)
		}
	}
}

func settingsURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string, log *logrus.Entry) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).WithField("url", url).Warn("failed to open browser")
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir, err := config.ExpandHome("~/.mudra/web")
	if err != nil {
		return ""
	}
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

