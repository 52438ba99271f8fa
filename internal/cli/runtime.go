package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/actionsum/nudge/internal/buffer"
	"github.com/actionsum/nudge/internal/capability"
	"github.com/actionsum/nudge/internal/config"
	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/focus"
	"github.com/actionsum/nudge/internal/notify"
	"github.com/actionsum/nudge/internal/reasoning"
	"github.com/actionsum/nudge/internal/reporter"
	"github.com/actionsum/nudge/internal/sensing"
	"github.com/actionsum/nudge/internal/snapshot"
	"github.com/actionsum/nudge/internal/tracker"
	"github.com/actionsum/nudge/internal/web"
	"github.com/actionsum/nudge/pkg/detector"
	"github.com/actionsum/nudge/pkg/integrations/clipboard"
	"github.com/actionsum/nudge/pkg/integrations/files"
)

// detectionRetention bounds how long detection history is kept.
const detectionRetention = 90 * 24 * time.Hour

// runtime is one running nudge instance.
type runtime struct {
	cfg     *config.Config
	cfgPath string
	db      *database.DB
	repo    *database.Repository
	buffer  *buffer.EventBuffer
	cache   *snapshot.Cache
	catalog *capability.Catalog
	sensing *sensing.Orchestrator
	server  *web.Server
	tracker *tracker.Service
	closers []io.Closer
	wg      sync.WaitGroup
}

// sensingSettings maps the configuration onto the orchestrator.
func sensingSettings(cfg *config.Config) (sensing.Settings, error) {
	evidence, err := config.EvidenceMinimum(cfg.Focus.Policy)
	if err != nil {
		return sensing.Settings{}, err
	}
	return sensing.Settings{
		FastInterval:  cfg.Sensing.FastInterval,
		FastWindow:    cfg.Sensing.FastWindow,
		FastCooldown:  cfg.Sensing.FastCooldown,
		SlowInterval:  cfg.Sensing.SlowInterval,
		ReasonTimeout: cfg.Reasoning.Timeout,
		Sensitivity:   cfg.Scorer.Sensitivity,
		Focus: focus.Settings{
			Window:          cfg.Focus.Window,
			SnapshotMaxAge:  cfg.Focus.SnapshotMaxAge,
			MissCooldown:    cfg.Focus.MissCooldown,
			HitCooldown:     cfg.Focus.HitCooldown,
			TimelineCap:     cfg.Focus.TimelineCap,
			EvidenceMinimum: evidence,
			SearchTimeout:   cfg.Capability.SearchTimeout,
			SearchLimit:     cfg.Capability.SearchLimit,
			ReasonTimeout:   cfg.Reasoning.Timeout,
		},
	}, nil
}

// newRuntime opens the database and wires every component. Nothing runs
// until start.
func newRuntime(cfg *config.Config, cfgPath string, out io.Writer, port int) (*runtime, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		cfgPath: cfgPath,
		db:      db,
		repo:    database.NewRepository(db),
		buffer:  buffer.New(cfg.Buffer.MaxEvents, cfg.Buffer.MaxAge),
		cache:   snapshot.New(nil),
		catalog: capability.New(db),
	}

	reasoner, err := reasoning.New(cfg.Reasoning)
	if err != nil {
		db.Close()
		return nil, err
	}
	settings, err := sensingSettings(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	observer := notify.Fanout{notify.NewConsole(out), notify.NewStore(rt.repo)}
	rt.sensing = sensing.New(rt.buffer, rt.cache, reasoner, observer, settings,
		sensing.WithCapabilities(rt.catalog, rt.catalog))

	rt.server = web.NewServer(cfg, web.Deps{
		Events:    rt.buffer,
		Snapshots: rt.cache,
		Buffer:    rt.buffer,
		Sensing:   rt.sensing,
		Repo:      rt.repo,
		Reporter:  reporter.New(rt.repo),
	}, port)

	return rt, nil
}

// start launches the loops, the producers, the web API and the config
// watcher. Producers that cannot run on this system are logged and skipped.
func (rt *runtime) start(ctx context.Context) error {
	if n, err := rt.repo.DeleteOldDetections(time.Now().Add(-detectionRetention)); err != nil {
		log.Printf("Failed to prune detections: %v", err)
	} else if n > 0 {
		log.Printf("Pruned %d old detections", n)
	}

	if err := rt.sensing.Start(ctx); err != nil {
		return err
	}

	rt.startProducers(ctx)

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := rt.server.Start(); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()

	if rt.cfgPath != "" {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			if err := config.Watch(ctx, rt.cfgPath, rt.reload); err != nil {
				log.Printf("Config watcher error: %v", err)
			}
		}()
	}

	log.Printf("Web API available at: http://%s", rt.server.GetAddress())
	return nil
}

func (rt *runtime) startProducers(ctx context.Context) {
	p := rt.cfg.Producers

	if p.Window {
		det, err := detector.New()
		if err != nil {
			log.Printf("Window tracking disabled: %v", err)
		} else {
			rt.closers = append(rt.closers, det)
			rt.tracker = tracker.NewService(p.WindowInterval, rt.buffer, det, rt.repo)
			rt.wg.Add(1)
			go func() {
				defer rt.wg.Done()
				if err := rt.tracker.Start(ctx); err != nil {
					log.Printf("Tracker error: %v", err)
				}
			}()
		}
	}

	if p.Clipboard {
		var appFunc func() string
		if rt.tracker != nil {
			appFunc = rt.tracker.CurrentApp
		}
		poller, err := clipboard.New(p.ClipboardInterval, rt.buffer, appFunc)
		if err != nil {
			log.Printf("Clipboard watching disabled: %v", err)
		} else {
			rt.wg.Add(1)
			go func() {
				defer rt.wg.Done()
				poller.Run(ctx)
			}()
		}
	}

	if len(p.WatchDirs) > 0 {
		w, err := files.NewWatcher(p.WatchDirs, rt.buffer)
		if err != nil {
			log.Printf("File watching disabled: %v", err)
		} else {
			rt.closers = append(rt.closers, w)
			log.Printf("Watching files under %v", w.Roots())
		}
	}
}

// reload applies the settings that can change without a restart.
func (rt *runtime) reload(cfg *config.Config) {
	rt.sensing.SetSensitivity(cfg.Scorer.Sensitivity)
	if n, err := config.EvidenceMinimum(cfg.Focus.Policy); err == nil {
		rt.sensing.SetEvidenceMinimum(n)
	}
	log.Printf("Applied sensitivity %.2f and %s focus policy", cfg.Scorer.Sensitivity, cfg.Focus.Policy)
}

// shutdown stops everything started by start. ctx must already be
// cancelled so the producers and the config watcher return.
func (rt *runtime) shutdown(timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := rt.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("web server: %w", err))
	}
	rt.sensing.Stop()
	rt.wg.Wait()

	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := rt.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
