package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Chat        *ChatConfig
	ObjStore    *ObjStoreConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ChatConfig tunes the realtime core: inbound rate limiting, outbound
// queue depth, backfill paging and connection lifetime.
type ChatConfig struct {
	// Token bucket for inbound sends, per connection.
	SendRate  float64
	SendBurst int
	// Capacity of each connection's outbound queue. When full, delivery to
	// that connection is skipped and the client recovers via backfill.
	OutQueueSize int
	// Maximum messages returned by one backfill page.
	BackfillPageSize int
	// Connections idle longer than this are swept.
	IdleTimeout time.Duration
	SweepEvery  time.Duration
	// Maximum simultaneous connections per user (<=0: unlimited).
	MaxConnsPerUser int
	// Consumer group used by the per-room stream workers.
	WorkerGroup string
}

type ObjStoreConfig struct {
	Endpoint string
	Bucket   string
	Timeout  time.Duration
	MaxSize  int64
}
