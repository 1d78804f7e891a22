package config

import (
	"github.com/kelseyhightower/envconfig"
	"time"
)

type Config struct {
	Api struct {
		Port     uint16 `envconfig:"API_PORT" default:"8080" required:"true"`
		Host     string `envconfig:"API_HOST" default:"fedistatus.local" required:"true"`
		Delivery DeliveryConfig
		Fetch    FetchConfig
	}
	Filters    FiltersConfig
	Moderation ModerationConfig
	Db         struct {
		Path string `envconfig:"DB_PATH" default:"fedistatus.db" required:"true"`
	}
	Log struct {
		Level int `envconfig:"LOG_LEVEL" default:"-4" required:"true"`
	}
}

type DeliveryConfig struct {
	Workers    uint32        `envconfig:"API_DELIVERY_WORKERS" default:"4" required:"true"`
	QueueLimit uint32        `envconfig:"API_DELIVERY_QUEUE_LIMIT" default:"1024" required:"true"`
	Backoff    time.Duration `envconfig:"API_DELIVERY_BACKOFF" default:"10s" required:"true"`
	Timeout    time.Duration `envconfig:"API_DELIVERY_TIMEOUT" default:"30s" required:"true"`
	UserAgent  string        `envconfig:"API_DELIVERY_USER_AGENT" default:"fedistatus" required:"true"`
	EventType  string        `envconfig:"API_DELIVERY_EVENT_TYPE" default:"com.awakari.fedistatus.v1" required:"true"`
}

type FetchConfig struct {
	Workers    uint32        `envconfig:"API_FETCH_WORKERS" default:"2" required:"true"`
	QueueLimit uint32        `envconfig:"API_FETCH_QUEUE_LIMIT" default:"256" required:"true"`
	Timeout    time.Duration `envconfig:"API_FETCH_TIMEOUT" default:"1m" required:"true"`
}

type FiltersConfig struct {
	CacheSize int `envconfig:"FILTERS_CACHE_SIZE" default:"1024" required:"true"`
}

type ModerationConfig struct {
	NgWords                []string `envconfig:"MOD_NG_WORDS" default:""`
	NgWordsStrangerMention []string `envconfig:"MOD_NG_WORDS_STRANGER_MENTION" default:""`
	StrangerMentionLocalNg bool     `envconfig:"MOD_STRANGER_MENTION_LOCAL_NG" default:"false"`
	HashtagCountMax        int      `envconfig:"MOD_HASHTAG_COUNT_MAX" default:"0"`
}

func NewConfigFromEnv() (cfg Config, err error) {
	err = envconfig.Process("", &cfg)
	return
}
