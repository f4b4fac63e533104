package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"paymaster"`
	Password string `env:"PASSWORD" envDefault:"paymaster"`
	Name     string `env:"NAME"     envDefault:"paymaster"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrations controls whether the application applies embedded migrations during startup.
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the job status cache.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig contains TTLs for cached job state.
type CacheConfig struct {
	// StatusTTL bounds how long a cached job status snapshot may serve reads.
	StatusTTL time.Duration `env:"CACHE_JOB_STATUS_TTL" envDefault:"1h"`

	// ResultsTTL bounds how long per-employee payroll results stay cached.
	ResultsTTL time.Duration `env:"CACHE_JOB_RESULTS_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.StatusTTL <= 0 {
		c.StatusTTL = time.Hour
	}
	if c.ResultsTTL <= 0 {
		c.ResultsTTL = 24 * time.Hour
	}
}
