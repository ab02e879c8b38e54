package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ayusman/trafficcv/internal/app"
	"github.com/ayusman/trafficcv/internal/capture"
	"github.com/ayusman/trafficcv/internal/config"
	"github.com/ayusman/trafficcv/internal/detector"
	"github.com/ayusman/trafficcv/internal/hook"
	"github.com/ayusman/trafficcv/internal/logging"
	"github.com/ayusman/trafficcv/internal/report"
	"github.com/ayusman/trafficcv/internal/server"
	"github.com/ayusman/trafficcv/internal/store"
	"github.com/ayusman/trafficcv/internal/tracker"
	"github.com/ayusman/trafficcv/internal/tray"
	"github.com/ayusman/trafficcv/internal/units"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return app.ExitOK
	}
	if err != nil {
		logging.Setup("info", logging.FormatConsole, nil)
		log.Error().Err(err).Msg("invalid configuration")
		return app.ExitConfig
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		logging.Setup("info", logging.FormatConsole, nil)
		log.Error().Err(err).Msg("invalid log configuration")
		return app.ExitConfig
	}
	if cfg.File != "" {
		log.Debug().Str("file", cfg.File).Msg("config file loaded")
	}

	if cfg.Command == config.CommandReport {
		return runReport(cfg, stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	labels, det, err := newDetector(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to create detector")
		return app.ExitConfig
	}
	defer det.Close()

	src := capture.NewSource(cfg.Source)

	if cfg.Info {
		if err := app.Info(src, det, labels); err != nil {
			log.Error().Err(err).Msg("failed to read source info")
			return app.ExitConfig
		}
		return app.ExitOK
	}

	cfg.LogDefaults()

	trackers, err := tracker.NewFactory(cfg.TrackerConfig())
	if err != nil {
		log.Error().Err(err).Msg("failed to create tracker factory")
		return app.ExitConfig
	}

	deps := app.Deps{
		Source:   src,
		Detector: det,
		Trackers: trackers,
	}

	// Measurement store
	var st *store.Store
	var runRecord *store.Run
	if cfg.Store.Path != "" {
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
			return app.ExitConfig
		}
		defer st.Close()

		runRecord = &store.Run{Source: cfg.Source, PPM: cfg.PPM, FPS: cfg.FPS, DetectionPeriod: cfg.FC}
		if err := st.Runs().Create(runRecord); err != nil {
			log.Error().Err(err).Msg("failed to create run")
			return app.ExitConfig
		}
		log.Info().Str("run", runRecord.ID).Str("path", st.Path()).Msg("recording measurements")
		deps.Observers = append(deps.Observers, store.NewRecorder(st, runRecord.ID))
	}

	// Speed hooks
	if cfg.Hooks.Dir != "" {
		mgr := hook.NewManager(cfg.Hooks.Dir)
		if err := mgr.Discover(); err != nil {
			log.Error().Err(err).Str("dir", cfg.Hooks.Dir).Msg("failed to discover hooks")
			return app.ExitConfig
		}
		for _, h := range mgr.List() {
			log.Info().Str("hook", h.Manifest.Name).Str("version", h.Manifest.Version).Msg("hook loaded")
		}

		unit, _ := units.Normalize(cfg.Units)
		dcfg := hook.DispatcherConfig{MinSpeed: cfg.Hooks.MinSpeed, Units: unit}
		if runRecord != nil {
			dcfg.RunID = runRecord.ID
		}
		dispatcher := hook.NewDispatcher(mgr, hook.NewExecutor(cfg.Hooks.Timeout), dcfg)
		defer dispatcher.Close()
		deps.Observers = append(deps.Observers, dispatcher)
	}

	// Live server
	if cfg.Server.Addr != "" {
		frames := server.NewFrameBuffer()
		hub := server.NewHub(cfg.Units)
		srv := server.New(server.Config{
			StaticDir: findWebDir(),
			Store:     st,
			Frames:    frames,
			Events:    hub,
			Units:     cfg.Units,
		})
		deps.Sinks = append(deps.Sinks, frames)
		deps.Observers = append(deps.Observers, hub)

		srvCtx, cancelSrv := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.ListenAndServe(srvCtx, cfg.Server.Addr); err != nil {
				log.Error().Err(err).Str("addr", cfg.Server.Addr).Msg("http server failed")
			}
		}()
		defer func() {
			cancelSrv()
			<-done
		}()
	}

	var t *tray.Tray
	if cfg.Tray {
		t = tray.New(cfg.Units)
		deps.Observers = append(deps.Observers, t)
	}

	a, err := app.New(app.Config{
		Calibration:     cfg.Calibration(),
		DetectionPeriod: cfg.FC,
		MeasuredFPS:     cfg.MeasuredFPS,
		NoWindow:        cfg.NoWindow,
	}, deps)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return app.ExitConfig
	}

	if runRecord != nil {
		defer func() {
			if err := st.Runs().Finish(runRecord.ID, time.Now()); err != nil {
				log.Error().Err(err).Str("run", runRecord.ID).Msg("failed to finish run")
			}
		}()
	}

	if t == nil {
		return exitCode(a.Run(ctx))
	}

	// The tray owns the main goroutine; the frame loop runs beside it.
	t.OnQuit(a.Stop)
	if cfg.Server.Addr != "" {
		t.OnDashboard(func() { openBrowser(dashboardURL(cfg.Server.Addr)) })
	}
	errc := make(chan error, 1)
	go func() {
		errc <- a.Run(ctx)
		t.Quit()
	}()
	t.Run()
	a.Stop()
	return exitCode(<-errc)
}

func exitCode(err error) int {
	if err != nil {
		log.Error().Err(err).Msg("speed detector failed")
		return app.ExitConfig
	}
	return app.ExitOK
}

// newDetector loads the label map and creates the configured detector.
func newDetector(cfg *config.Config) (detector.Labels, detector.Detector, error) {
	kind := detector.Kind(cfg.Detector.Kind)

	labels, err := detector.LoadLabels(cfg.Model.Labels)
	if err != nil {
		if kind == detector.KindTFLite || !errors.Is(err, detector.ErrLabelsNotFound) {
			return nil, nil, err
		}
		log.Warn().Str("path", cfg.Model.Labels).Msg("labels file not found, detections are unnamed")
		labels = detector.Labels{}
	}

	switch kind {
	case detector.KindTFLite:
		det, err := detector.NewTFLiteDetector(detector.TFLiteConfig{
			ModelPath: cfg.ModelPath(),
			EdgeTPU:   cfg.Model.EdgeTPU,
			Threads:   cfg.Model.Threads,
			Labels:    labels,
		}, cfg.DetectorConfig())
		return labels, det, err
	case detector.KindSubprocess:
		det, err := detector.NewSubprocessDetector(cfg.Detector.Command, labels, cfg.DetectorConfig())
		return labels, det, err
	case detector.KindMock:
		return labels, detector.NewMockDetector(), nil
	default:
		return nil, nil, fmt.Errorf("unknown detector %q", cfg.Detector.Kind)
	}
}

// runReport prints speed statistics for the stored measurements. An
// optional positional argument restricts the report to one run.
func runReport(cfg *config.Config, stdout io.Writer) int {
	if cfg.Store.Path == "" {
		log.Error().Msg("report needs a measurement store (--store)")
		return app.ExitConfig
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		log.Error().Err(err).Str("path", cfg.Store.Path).Msg("measurement store not found")
		return app.ExitConfig
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
		return app.ExitConfig
	}
	defer st.Close()

	speeds, err := st.Measurements().Speeds(store.MeasurementFilter{RunID: cfg.Run})
	if err != nil {
		log.Error().Err(err).Msg("failed to load measurements")
		return app.ExitConfig
	}

	printSummary(stdout, report.Summarize(speeds, cfg.Units))
	return app.ExitOK
}

func printSummary(w io.Writer, s report.Summary) {
	label := units.Label(s.Units)
	fmt.Fprintf(w, "vehicles: %d\n", s.Count)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "mean:     %.1f %s (sd %.1f)\n", s.Mean, label, s.StdDev)
	fmt.Fprintf(w, "min:      %.1f %s\n", s.Min, label)
	fmt.Fprintf(w, "p50:      %.1f %s\n", s.P50, label)
	fmt.Fprintf(w, "p85:      %.1f %s\n", s.P85, label)
	fmt.Fprintf(w, "p98:      %.1f %s\n", s.P98, label)
	fmt.Fprintf(w, "max:      %.1f %s\n", s.Max, label)
}

// findWebDir returns the first existing dashboard directory, or "".
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return ""
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
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
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to open browser")
		return
	}
	go cmd.Wait()
}
