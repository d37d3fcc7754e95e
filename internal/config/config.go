// Package config centralizes the gateway's deployment knobs. Every option
// is flag-based with an environment-variable override.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved set of gateway options.
type Config struct {
	// PodName is written into every presence entry this pod registers.
	PodName string

	// Addr is the websocket + HTTP listen address.
	Addr string

	// RedisAddr backs the presence directory, relay bus, and undelivered store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers backs the notification publisher.
	KafkaBrokers []string

	// TokenSecret verifies the handshake's signed token (HMAC).
	TokenSecret string

	// ProfileServiceURL is queried by the profile cache on a miss.
	ProfileServiceURL string

	// OfflineMessagingEnabled gates the whole offline branch of the router.
	OfflineMessagingEnabled bool
	// OfflineMessageStorageEnabled independently gates storing the message
	// in the undelivered store.
	OfflineMessageStorageEnabled bool
	// OfflineKafkaNotificationsEnabled independently gates publishing a
	// push notification for the undelivered message.
	OfflineKafkaNotificationsEnabled bool
	// OfflineMessageTTL is the undelivered-store retention window.
	OfflineMessageTTL time.Duration
	// OfflineNotificationChannel is the push channel discriminator (SMS/EMAIL/INAPP).
	OfflineNotificationChannel string

	// RelayChannel is the shared pub/sub channel name (default websocket:messages).
	RelayChannel string
	// SampleTopic is the legacy in-app/OTP topic.
	SampleTopic string
	// OfflineTopic is the offline-notification topic.
	OfflineTopic string

	// ProfileCacheSize bounds the LRU profile cache (default 1000).
	ProfileCacheSize int
	// ProfileCacheShards is the number of independently-locked shards.
	ProfileCacheShards int

	// OperationTimeout bounds each request to the profile service. It is not
	// applied to Redis, Kafka, or websocket writes.
	OperationTimeout time.Duration

	// MaxFrameBytes is the inbound websocket frame-size limit.
	MaxFrameBytes int64

	// CallCleanupDelay is the delay before a terminal call session is removed.
	CallCleanupDelay time.Duration
}

// FromFlags parses args (normally os.Args[1:]) and applies environment
// overrides.
func FromFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)

	podName := fs.String("pod-name", envOr("POD_NAME", "dev"), "pod identifier written into presence entries")
	addr := fs.String("addr", envOr("ADDR", ":8080"), "websocket/HTTP listen address")
	redisAddr := fs.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address backing presence, relay, and undelivered store")
	redisPassword := fs.String("redis-password", envOr("REDIS_PASSWORD", ""), "redis password")
	redisDB := fs.Int("redis-db", envIntOr("REDIS_DB", 0), "redis logical database index")
	kafkaBrokers := fs.String("kafka-brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "comma-separated kafka broker list")
	tokenSecret := fs.String("token-secret", envOr("TOKEN_SECRET", ""), "HMAC secret verifying the handshake token")
	profileURL := fs.String("profile-service-url", envOr("PROFILE_SERVICE_URL", ""), "profile lookup backend base URL")
	offlineMessaging := fs.Bool("offline-messaging-enabled", envBoolOr("OFFLINE_MESSAGING_ENABLED", true), "enable the offline branch of the delivery router")
	offlineStorage := fs.Bool("offline-message-storage-enabled", envBoolOr("OFFLINE_MESSAGE_STORAGE_ENABLED", true), "enable storing offline messages in the undelivered store")
	offlineKafka := fs.Bool("offline-kafka-notifications-enabled", envBoolOr("OFFLINE_KAFKA_NOTIFICATIONS_ENABLED", true), "enable publishing offline-notification events")
	offlineTTLDays := fs.Int("offline-message-ttl-days", envIntOr("OFFLINE_MESSAGE_TTL_DAYS", 30), "undelivered-message retention window, in days")
	offlineChannel := fs.String("offline-notification-channel", envOr("OFFLINE_NOTIFICATION_CHANNEL", protocolDefaultChannel), "push channel discriminator (SMS|EMAIL|INAPP)")
	relayChannel := fs.String("relay-channel", envOr("RELAY_CHANNEL", "websocket:messages"), "shared relay pub/sub channel name")
	sampleTopic := fs.String("sample-topic", envOr("SAMPLE_TOPIC", "sample-message-topic"), "legacy in-app/OTP notification topic")
	offlineTopic := fs.String("offline-topic", envOr("OFFLINE_TOPIC", "undelivered.notification.message"), "offline notification topic")
	profileCacheSize := fs.Int("profile-cache-size", envIntOr("PROFILE_CACHE_SIZE", 1000), "max entries held in the profile cache")
	profileCacheShards := fs.Int("profile-cache-shards", envIntOr("PROFILE_CACHE_SHARDS", 16), "number of independently-locked profile cache shards")
	opTimeout := fs.Duration("operation-timeout", envDurationOr("OPERATION_TIMEOUT", 2*time.Second), "timeout applied to each profile-service request")
	maxFrameBytes := fs.Int64("max-frame-bytes", int64(envIntOr("MAX_FRAME_BYTES", 1<<20)), "inbound websocket frame-size limit in bytes")
	cleanupDelay := fs.Duration("call-cleanup-delay", envDurationOr("CALL_CLEANUP_DELAY", 5*time.Second), "delay before a terminal call session is removed")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	brokers := splitNonEmpty(*kafkaBrokers, ',')

	return Config{
		PodName:                          *podName,
		Addr:                             *addr,
		RedisAddr:                        *redisAddr,
		RedisPassword:                    *redisPassword,
		RedisDB:                          *redisDB,
		KafkaBrokers:                     brokers,
		TokenSecret:                      *tokenSecret,
		ProfileServiceURL:                *profileURL,
		OfflineMessagingEnabled:          *offlineMessaging,
		OfflineMessageStorageEnabled:     *offlineStorage,
		OfflineKafkaNotificationsEnabled: *offlineKafka,
		OfflineMessageTTL:                time.Duration(*offlineTTLDays) * 24 * time.Hour,
		OfflineNotificationChannel:       *offlineChannel,
		RelayChannel:                     *relayChannel,
		SampleTopic:                      *sampleTopic,
		OfflineTopic:                     *offlineTopic,
		ProfileCacheSize:                 *profileCacheSize,
		ProfileCacheShards:               *profileCacheShards,
		OperationTimeout:                 *opTimeout,
		MaxFrameBytes:                    *maxFrameBytes,
		CallCleanupDelay:                 *cleanupDelay,
	}, nil
}

const protocolDefaultChannel = "SMS"

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string, sep rune) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == sep {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := s[start:]; part != "" {
		out = append(out, part)
	}
	return out
}
