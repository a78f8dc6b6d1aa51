package config

// Config 配置主体
type Config struct {
	Server                ServerConfig          `mapstructure:"server"`
	DB                    DBConfig              `mapstructure:"database"`
	Redis                 RedisConfig           `mapstructure:"redis"`
	Logstash              LogstashConfig        `mapstructure:"logstash"`
	Media                 MediaConfig           `mapstructure:"media"`
	Kafka                 KafkaConfig           `mapstructure:"kafka"`
	KafkaDeliveryConsumer KafkaDeliveryConsumer `mapstructure:"kafka_delivery_consumer"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
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

// LogstashConfig 远端日志汇聚
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// MediaConfig 媒体服务内部接口
type MediaConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
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

type KafkaDeliveryConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}
