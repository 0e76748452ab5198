package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	apexJSON "github.com/apex/log/handlers/json"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"seatsync/api"
	"seatsync/config"
	"seatsync/realtime"
	"seatsync/seatmap"
	"seatsync/session"
	"seatsync/shared"
	"seatsync/store"
)

type cliArgs struct {
	JSONLog  bool
	LogLevel string
	EventID  string
}

var cmdArgs cliArgs

var logTags = log.Fields{"module": "main", "component": "seatwatch"}

func main() {
	// Missing .env is fine; environment overrides still apply.
	_ = godotenv.Load()

	app := &cli.App{
		Name:        "seatwatch",
		Usage:       "tail an event's live seat availability",
		Description: "Joins the event's realtime room and logs every seat-state change until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json-log",
				Usage:       "Whether to log in JSON format",
				Aliases:     []string{"j"},
				EnvVars:     []string{"LOG_AS_JSON"},
				Destination: &cmdArgs.JSONLog,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Logging level: [debug info warn error]",
				Aliases:     []string{"l"},
				EnvVars:     []string{"LOG_LEVEL"},
				Value:       "info",
				Destination: &cmdArgs.LogLevel,
			},
			&cli.StringFlag{
				Name:        "event",
				Usage:       "Event ID to watch",
				Aliases:     []string{"e"},
				EnvVars:     []string{"SEATWATCH_EVENT"},
				Destination: &cmdArgs.EventID,
				Required:    true,
			},
		},
		Action: runWatch,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).WithFields(logTags).Fatal("Program shutdown")
	}
}

func setupLogging() {
	if cmdArgs.JSONLog {
		log.SetHandler(apexJSON.New(os.Stderr))
	}
	switch cmdArgs.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}

func runWatch(c *cli.Context) error {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	statePath := cfg.StateFile
	if statePath == "" {
		statePath, err = store.DefaultStatePath()
		if err != nil {
			return err
		}
	}
	st, err := store.NewFileStore(statePath)
	if err != nil {
		return err
	}

	sessions := session.NewProvider(st)
	sessionID, err := sessions.SessionID()
	if err != nil {
		return err
	}

	mgr := realtime.NewManager(cfg.RealtimeURL(), cfg.Realtime, func() shared.ConnectAuth {
		token, _ := st.Get(shared.StorageKeyAccessToken)
		return shared.ConnectAuth{Token: token, SessionID: sessionID}
	})
	defer mgr.Disconnect()

	eventID := cmdArgs.EventID
	watcher := seatmap.NewReconciler(mgr, eventID)
	watcher.OnSeatsChanged = func(deltas []shared.SeatDelta) {
		for _, delta := range deltas {
			log.WithFields(logTags).
				WithField("seat", delta.SeatID).
				WithField("status", delta.Status).
				Info("Seat changed")
		}
	}
	watcher.OnViewersUpdate = func(count int) {
		log.WithFields(logTags).WithField("viewers", count).Info("Viewer count changed")
	}
	watcher.OnHoldExpiringSoon = func(warning shared.HoldExpiringSoon) {
		log.WithFields(logTags).WithField("expires_at", warning.ExpiresAt).
			Info(warning.Message)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	// Prime the projection from the HTTP seat plan, falling back to a
	// channel-side query when the storefront is unreachable.
	client := api.NewClient(cfg.APIURL, st)
	if plan, err := client.SeatPlan(eventID); err == nil {
		watcher.SetSeats(plan.Seats)
	} else {
		log.WithError(err).WithFields(logTags).Warn("Seat plan fetch failed, querying channel")
		if seats, err := mgr.QuerySeatStatus(ctx, eventID, nil); err == nil {
			watcher.SetSeats(seats)
		} else {
			log.WithError(err).WithFields(logTags).Warn("Seat status query failed")
		}
	}
	logSummary(watcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.WithFields(logTags).Info("Shutting down")
	return nil
}

func logSummary(watcher *seatmap.Reconciler) {
	available, held, sold := 0, 0, 0
	for _, seat := range watcher.Seats() {
		switch seat.Status {
		case shared.SeatAvailable:
			available++
		case shared.SeatHeld:
			held++
		case shared.SeatSold:
			sold++
		}
	}
	log.WithFields(logTags).
		WithField("available", available).
		WithField("held", held).
		WithField("sold", sold).
		Info("Seat map primed")
}
