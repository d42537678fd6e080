package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marinraf/StimuliApp-sub001/internal/api"
	"github.com/marinraf/StimuliApp-sub001/internal/config"
	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/mqtt"
	"github.com/marinraf/StimuliApp-sub001/internal/orchestrator"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
	"github.com/marinraf/StimuliApp-sub001/internal/storage"
	"github.com/marinraf/StimuliApp-sub001/internal/storage/postgres"
	"github.com/marinraf/StimuliApp-sub001/internal/storage/sqlite"
	"github.com/marinraf/StimuliApp-sub001/internal/version"
)

const (
	healthInterval  = 5 * time.Second
	frameBuffer     = 4
	heartbeatFactor = 2.0
)

var (
	runConfigPath string
	runIDFlag     string
	runRestore    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the design named in run.yaml",
	Long: `Runs a design against the renderer on the MQTT broker and serves the
control API. The run log goes to the configured store; with --restore a run
with the same id resumes at its next trial.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "run.yaml", "path to run.yaml")
	runCmd.Flags().StringVar(&runIDFlag, "run-id", "", "run id (default: run.yaml, STIMULI_RUN_ID or a new uuid)")
	runCmd.Flags().BoolVar(&runRestore, "restore", false, "resume the stored run with the same id")
}

// loadRunConfig layers run.yaml, the environment and the flags.
func loadRunConfig() (*config.RunConfig, *config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadRunConfig(runConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", runConfigPath, err)
	}
	cfg.ApplyEnv(env)
	if runIDFlag != "" {
		cfg.Run.ID = runIDFlag
	}
	if runRestore {
		cfg.Run.Restore = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Run.ID == "" {
		if cfg.Run.Restore {
			return nil, nil, fmt.Errorf("restore needs a run id")
		}
		cfg.Run.ID = uuid.NewString()
	}
	return cfg, env, nil
}

// openStore connects the configured run log backend. It returns nil for
// the none backend.
func openStore(cfg *config.RunConfig, env *config.Env) (storage.Store, error) {
	switch cfg.StoreBackend() {
	case config.StoreNone:
		return nil, nil
	case config.StorePostgres:
		return postgres.New(postgres.Options{
			Host:     env.PGHost,
			Port:     strconv.Itoa(env.PGPort),
			User:     env.PGUser,
			Password: env.PGPassword,
			Database: env.PGDatabase,
			SSLMode:  env.PGSSLMode,
		}, cfg.Run.ID)
	default:
		return sqlite.Open(cfg.StorePath(), cfg.Run.ID)
	}
}

// watchStore reports the reachability of stores that can be pinged.
func watchStore(ctx context.Context, store storage.Store) {
	pinger, ok := store.(interface{ Ping() error })
	if !ok {
		return
	}
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := pinger.Ping()
			if err != nil {
				log.Printf("store: ping failed: %v", err)
			}
			api.SetStoreConnected(err == nil)
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, env, err := loadRunConfig()
	if err != nil {
		return err
	}
	runID := cfg.Run.ID

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "stimuli starting", map[string]interface{}{
		"run_id":   runID,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	doc, err := design.Load(cfg.Run.Design)
	if err != nil {
		return err
	}

	if err := api.InitAuth(); err != nil {
		return err
	}
	if err := api.InitTLS(env.TLSCert, env.TLSKey); err != nil {
		return err
	}
	api.InitAlerts(api.AlertConfig{
		WebhookURL: env.AlertWebhookURL,
		RunID:      runID,
		MQTTDelay:  env.MQTTAlertDelay,
		StoreDelay: env.StoreAlertDelay,
	})

	store, err := openStore(cfg, env)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend(), err)
	}
	if store != nil {
		defer store.Close()
		events.SetStore(store)
		// Drains queued events before the store closes.
		defer events.SetStore(nil)
	}
	api.SetStoreStatus(store != nil, store == nil)

	seeds := rng.Seeds{}
	for k, v := range cfg.Run.Seeds {
		seeds[k] = v
	}
	var restored *orchestrator.RestoredState
	var restoredEvents int
	if cfg.Run.Restore {
		if store == nil {
			return fmt.Errorf("restore needs a store")
		}
		restored, restoredEvents, err = orchestrator.RestoreFromEvents(store, 0)
		if err != nil {
			return fmt.Errorf("failed to restore run %s: %w", runID, err)
		}
		if restored != nil {
			for k, v := range restored.Seeds {
				seeds[k] = v
			}
		}
	}

	metrics := api.RunMetrics()
	topics := mqtt.Topics{Prefix: cfg.MQTT.Prefix}
	useMQTT := cfg.MQTT.URL != "" || !cfg.MQTT.Optional || cfg.FrameSource() == config.FramesDisplay
	api.SetMQTTStatus(false, cfg.MQTT.Optional)

	var (
		client    *mqtt.Client
		sub       *mqtt.Subscriber
		connected = make(chan struct{}, 1)
		opts      = orchestrator.Options{RunID: runID, Seeds: seeds, Observer: metrics}
	)
	if useMQTT {
		client = mqtt.NewClient(mqtt.Options{
			BrokerURL: cfg.MQTT.URL,
			ClientID:  "stimuli-" + runID,
			Username:  env.MQTTUsername,
			Password:  env.MQTTPassword,
			OnConnect: func() {
				select {
				case connected <- struct{}{}:
				default:
				}
			},
			OnConnectionLost: func(err error) {
				log.Printf("mqtt: connection lost: %v", err)
				api.SetMQTTConnected(false)
			},
		})
		executor := orchestrator.NewCheckpointExecutor(client, topics)
		sub = mqtt.NewSubscriber(client, topics, frameBuffer)
		metrics.WatchPublishFailures(executor.Failures)
		metrics.WatchDroppedFrames(sub.DroppedFrames)
		opts.Renderer = executor
	}

	rt, err := orchestrator.NewRuntime(doc, opts)
	if err != nil {
		return err
	}
	if restored != nil {
		if err := rt.ApplyRestoredState(restored); err != nil {
			return fmt.Errorf("failed to apply restored run %s: %w", runID, err)
		}
		orchestrator.EmitStartupRestore(restoredEvents, runID)
	}
	api.SetRun(rt)
	defer api.SetRun(nil)

	if useMQTT {
		done := subscribeOnConnect(connected, sub, cfg, doc, responseHandler(rt))
		defer close(done)
		defer func() {
			if client.IsConnected() {
				client.Disconnect()
			}
		}()
		if err := client.Connect(); err != nil {
			if !cfg.MQTT.Optional {
				return fmt.Errorf("failed to connect to %s: %w", client.BrokerURL(), err)
			}
			log.Printf("mqtt: %s unavailable, running without renderer until it connects: %v", client.BrokerURL(), err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var ticks <-chan struct{}
	if cfg.FrameSource() == config.FramesDisplay {
		ticks = sub.Frames()
	} else {
		ticks = orchestrator.FrameTicker(ctx, doc.FrameRate)
	}

	g.Go(func() error {
		return api.ListenAndServe(ctx, cfg.HTTPPort())
	})
	g.Go(func() error {
		// The process ends with the run.
		defer cancel()
		return rt.Run(ctx, ticks)
	})
	if store != nil {
		g.Go(func() error {
			watchStore(ctx, store)
			return nil
		})
	}
	api.StartAlertMonitor(healthInterval, ctx.Done())
	api.SetRunReady(true)

	err = g.Wait()
	api.SetRunReady(false)

	status := rt.Status()
	if status.State == orchestrator.RunStateAborted {
		api.AlertRunAbort("run aborted")
	}
	events.Emit("info", "system.shutdown", "", map[string]interface{}{
		"run_id": runID,
		"state":  string(status.State),
		"trials": status.Trials,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// responseHandler decodes MQTT responses into run commands.
func responseHandler(rt *orchestrator.Runtime) mqtt.ResponseHandler {
	return func(payload []byte) error {
		var resp orchestrator.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("invalid response: %w", err)
		}
		return rt.SubmitResponse(resp)
	}
}

// subscribeOnConnect subscribes the run topics after every (re)connect
// until the returned channel is closed. The display monitor runs alongside.
func subscribeOnConnect(connected <-chan struct{}, sub *mqtt.Subscriber, cfg *config.RunConfig, doc *design.Document, handle mqtt.ResponseHandler) chan struct{} {
	done := make(chan struct{})
	monitor := mqtt.NewMonitor(mqtt.DisplaySpec{
		FrameRate: doc.FrameRate,
		Tolerance: cfg.Display.RefreshTolerance,
	}, heartbeatFactor)
	monitor.Start(healthInterval)

	go func() {
		defer monitor.Stop()
		for {
			select {
			case <-done:
				return
			case <-connected:
				sub.ClearSubscriptions()
				err := errors.Join(
					sub.SubscribeResponses(handle),
					sub.SubscribeDisplays(monitor),
				)
				if cfg.FrameSource() == config.FramesDisplay {
					err = errors.Join(err, sub.SubscribeFrames())
				}
				if err != nil {
					log.Printf("mqtt: subscribe failed: %v", err)
				}
				api.SetMQTTConnected(err == nil)
			}
		}
	}()
	return done
}
