package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtkrover/internal/buttons"
	"rtkrover/internal/config"
	"rtkrover/internal/logstore"
	"rtkrover/internal/ntrip"
	"rtkrover/internal/receiver"
	"rtkrover/internal/rover"
	"rtkrover/internal/session"
	"rtkrover/internal/telemetry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rover.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	booted := time.Now()

	store := logstore.New(logstore.Config{
		Dir:           cfg.Storage.Dir,
		RetryAttempts: cfg.Storage.RetryAttempts,
		RetryDelay:    cfg.Storage.RetryDelay,
	})

	sess := session.New(store, session.Config{
		MinSampleInterval: cfg.Logging.MinSampleInterval,
	})

	recv := receiver.New(receiver.Config{
		Device: cfg.Receiver.Device,
		Baud:   uint(cfg.Receiver.Baud),
	})
	if err := recv.Start(ctx); err != nil {
		// Keep running without the receiver; storage health, buttons and
		// telemetry stay alive.
		log.Printf("receiver unavailable: %v", err)
	}
	defer recv.Close()

	var caster *ntrip.Client
	if cfg.Ntrip.Host != "" {
		caster = ntrip.New(ntrip.Config{
			Host:           cfg.Ntrip.Host,
			Port:           cfg.Ntrip.Port,
			Mount:          cfg.Ntrip.Mount,
			User:           cfg.Ntrip.User,
			Password:       cfg.Ntrip.Password,
			SendPosition:   cfg.Ntrip.SendPosition,
			ReconnectDelay: cfg.Ntrip.ReconnectDelay,
		})
		defer caster.Close()
		log.Printf("ntrip configured host=%s port=%d mount=%s", cfg.Ntrip.Host, cfg.Ntrip.Port, cfg.Ntrip.Mount)
	}

	btns := buttons.New(buttons.Config{
		Enable:    cfg.Buttons.Enable,
		Chip:      cfg.Buttons.Chip,
		LogPin:    cfg.Buttons.LogPin,
		ViewPin:   cfg.Buttons.ViewPin,
		Debounce:  cfg.Buttons.Debounce,
		LongPress: cfg.Buttons.LongPress,
	})
	if err := btns.Start(); err != nil {
		// Buttons are optional hardware; run headless without them.
		log.Printf("buttons unavailable: %v", err)
	}
	defer btns.Close()

	pub := telemetry.New(telemetry.Config{
		Enable:      cfg.Telemetry.Enable,
		Broker:      cfg.Telemetry.Broker,
		ClientID:    cfg.Telemetry.ClientID,
		TopicPrefix: cfg.Telemetry.TopicPrefix,
		Interval:    cfg.Telemetry.Interval,
	})
	if err := pub.Start(); err != nil {
		log.Printf("telemetry unavailable: %v", err)
	}
	defer pub.Close()

	loop := rover.New(rover.Deps{
		Receiver: recv,
		Session:  sess,
		Ntrip:    caster,
		Storage:  store,
		Buttons:  btns.Events(),
		Booted:   booted,
		Health: func(now time.Time) {
			st := telemetry.Status{
				Time:      now.UTC().Format("2006-01-02 15:04:05"),
				UptimeSec: int64(now.Sub(booted) / time.Second),
				Receiver:  recv.Snapshot(),
				Session:   sess.Snapshot(),
				Storage:   store.Snapshot(),
			}
			if caster != nil {
				st.Ntrip = caster.Snapshot()
			}
			pub.Publish(st)
			log.Printf("status state=%s point=%d samples=%d ntrip_connected=%t storage_available=%t",
				st.Session.State, st.Session.PointNumber, st.Session.Samples,
				st.Ntrip.Connected, st.Storage.Available)
		},
	}, rover.Config{
		HealthInterval: pub.Interval(),
	})

	log.Printf("rtkrover starting device=%s baud=%d storage_dir=%s", cfg.Receiver.Device, cfg.Receiver.Baud, cfg.Storage.Dir)
	loop.Run(ctx)
	log.Printf("rtkrover stopping")
}
