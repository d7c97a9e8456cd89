package config

// Config 配置主体
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"database"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Hub     HubConfig     `mapstructure:"hub"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Cron    CronConfig    `mapstructure:"cron"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	NodeID string `mapstructure:"node_id"`
}

// LogConfig 日志配置，Logstash 地址为空时只输出到 stdout
type LogConfig struct {
	Level    string         `mapstructure:"level"`
	Logstash LogstashConfig `mapstructure:"logstash"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

const (
	StorageMemory     = "memory"
	StoragePersistent = "persistent"
)

// StorageConfig 存储驱动: memory 或 persistent(MySQL + Mongo + Redis)
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// JWTConfig 鉴权配置，Expiration 单位为小时
type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	Expiration int    `mapstructure:"expiration"`
}

// HubConfig 长连接配置，时间单位为秒
type HubConfig struct {
	SendBuffer     int   `mapstructure:"send_buffer"`
	Cluster        bool  `mapstructure:"cluster"`
	WriteWait      int   `mapstructure:"write_wait"`
	PongWait       int   `mapstructure:"pong_wait"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

type KafkaConfig struct {
	Enable      bool           `mapstructure:"enable"`
	Brokers     []string       `mapstructure:"brokers"`
	Sasl        SaslConfig     `mapstructure:"sasl"`
	Consumer    ConsumerConfig `mapstructure:"consumer"`
	PushTopic   string         `mapstructure:"push_topic"`
	MemberTopic string         `mapstructure:"member_topic"`
	MemberGroup string         `mapstructure:"member_group"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type CronConfig struct {
	ExpirySpec string `mapstructure:"expiry_spec"`
}
