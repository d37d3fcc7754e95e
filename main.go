// Command chatgate runs one pod of the cross-pod real-time messaging
// gateway: the websocket endpoint, the thin HTTP surface, and the cross-pod
// relay consumer, wired to a shared Redis instance and Kafka cluster.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/auth"
	"chatgate/internal/config"
	"chatgate/internal/httpapi"
	"chatgate/internal/notify"
	"chatgate/internal/presence"
	"chatgate/internal/profile"
	"chatgate/internal/protocol"
	"chatgate/internal/relay"
	"chatgate/internal/router"
	"chatgate/internal/session"
	"chatgate/internal/signaling"
	"chatgate/internal/undelivered"
	"chatgate/internal/ws"
)

func main() {
	cfg, err := config.FromFlags(os.Args[1:])
	if err != nil {
		slog.Error("config parse failed", "err", err)
		os.Exit(1)
	}
	if cfg.TokenSecret == "" {
		slog.Error("token-secret is required")
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	sessions := session.New()
	pres := presence.New(rdb)
	relayBus := relay.New(rdb, cfg.RelayChannel)
	store := undelivered.New(rdb, cfg.OfflineMessageTTL)
	notifier := notify.New(cfg.KafkaBrokers, cfg.SampleTopic, cfg.OfflineTopic)
	verifier := auth.NewVerifier(cfg.TokenSecret)

	cache, err := profile.New(newProfileLoader(cfg.ProfileServiceURL, cfg.OperationTimeout), cfg.ProfileCacheSize, cfg.ProfileCacheShards)
	if err != nil {
		slog.Error("profile cache construction failed", "err", err)
		os.Exit(1)
	}

	rt := router.New(localSessionTable{sessions}, pres, relayBus, store, notifier, cache, router.Options{
		PodName:                          cfg.PodName,
		OfflineMessagingEnabled:          cfg.OfflineMessagingEnabled,
		OfflineMessageStorageEnabled:     cfg.OfflineMessageStorageEnabled,
		OfflineKafkaNotificationsEnabled: cfg.OfflineKafkaNotificationsEnabled,
		OfflineNotificationChannel:       cfg.OfflineNotificationChannel,
	})
	sig := signaling.New(rt, cfg.CallCleanupDelay)

	wsHandler := ws.New(sessions, pres, verifier, rt, sig, cfg.PodName, cfg.MaxFrameBytes)
	httpServer := httpapi.New(pres, rt, store, verifier)
	wsHandler.Register(httpServer.Echo())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go runWithBackoff(ctx, "relay-consumer", func(ctx context.Context) error {
		return relayBus.Run(ctx, deliverRelayed(sessions))
	})

	slog.Info("gateway starting", "pod", cfg.PodName, "addr", cfg.Addr)
	if err := httpServer.Run(ctx, cfg.Addr); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func newProfileLoader(baseURL string, timeout time.Duration) profile.Loader {
	return profile.NewHTTPLoader(baseURL, timeout)
}

// localSessionTable bridges session.Table's Socket (Send+Close) to
// router.SessionTable's narrower Socket (Send only).
type localSessionTable struct{ t *session.Table }

func (l localSessionTable) Get(userID string) (router.Socket, bool) {
	sock, ok := l.t.Get(userID)
	if !ok {
		return nil, false
	}
	return sock, true
}

// deliverRelayed builds the relay.Handler that completes a cross-pod
// delivery on the receiving side: a payload published by router.deliver or
// router.SendLocalOrRelay is always addressed to a user the publishing pod
// believed was present, which on this pod means "present locally or not at
// all" (presence is shared, but the socket itself is pod-local).
func deliverRelayed(sessions *session.Table) relay.Handler {
	return func(_ context.Context, payload protocol.RelayPayload) {
		sock, ok := sessions.Get(payload.TargetUserID)
		if !ok {
			return
		}
		if err := sock.Send(relayedMessage{raw: payload.Message}); err != nil {
			slog.Warn("relayed delivery failed", "component", "main", "receiver_id", payload.TargetUserID, "err", err)
		}
	}
}

// relayedMessage carries an already-serialized JSON payload (an Envelope or
// an OutboundSignal, depending on what the originating pod published)
// straight through to the client without a decode/re-encode round trip.
type relayedMessage struct{ raw string }

func (r relayedMessage) MarshalJSON() ([]byte, error) {
	return []byte(r.raw), nil
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when
// it returns a non-nil, non-cancellation error. The delay starts at 1 second
// and doubles on each consecutive failure up to a 1-minute cap.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = time.Minute
	)
	delay := initialDelay
	for {
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("background service stopped, restarting", "service", name, "err", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
