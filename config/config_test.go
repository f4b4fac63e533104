package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:  "single service - scheduler",
			input: "scheduler",
			expected: map[ServiceMode]bool{
				ServiceModeScheduler: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "http,worker,scheduler,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:      true,
				ServiceModeWorker:    true,
				ServiceModeScheduler: true,
				ServiceModeReaper:    true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " http , worker , scheduler ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:      true,
				ServiceModeWorker:    true,
				ServiceModeScheduler: true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "http,http,worker",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "mixed valid and invalid",
			input:       "http,worker,invalid",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name              string
		services          string
		expectedHTTP      bool
		expectedWorker    bool
		expectedScheduler bool
		expectedReaper    bool
	}{
		{
			name:         "default - http only",
			services:     "http",
			expectedHTTP: true,
		},
		{
			name:           "http and worker",
			services:       "http,worker",
			expectedHTTP:   true,
			expectedWorker: true,
		},
		{
			name:              "all services",
			services:          "http,worker,scheduler,reaper",
			expectedHTTP:      true,
			expectedWorker:    true,
			expectedScheduler: true,
			expectedReaper:    true,
		},
		{
			name:           "worker only",
			services:       "worker",
			expectedWorker: true,
		},
		{
			name:              "scheduler only",
			services:          "scheduler",
			expectedScheduler: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}

			if cfg.IsWorkerEnabled() != tt.expectedWorker {
				t.Errorf("IsWorkerEnabled(): expected %v, got %v", tt.expectedWorker, cfg.IsWorkerEnabled())
			}

			if cfg.IsSchedulerEnabled() != tt.expectedScheduler {
				t.Errorf("IsSchedulerEnabled(): expected %v, got %v", tt.expectedScheduler, cfg.IsSchedulerEnabled())
			}

			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "invalid-service"}

	// All methods should return false when configuration is invalid
	if cfg.IsHTTPServerEnabled() {
		t.Errorf("IsHTTPServerEnabled() with invalid config: expected false, got true")
	}

	if cfg.IsWorkerEnabled() {
		t.Errorf("IsWorkerEnabled() with invalid config: expected false, got true")
	}

	if cfg.IsSchedulerEnabled() {
		t.Errorf("IsSchedulerEnabled() with invalid config: expected false, got true")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeScheduler,
		ServiceModeReaper,
	}

	if len(modes) != len(expected) {
		t.Errorf("expected %d service modes, got %d", len(expected), len(modes))
	}

	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "payroll")
	t.Setenv("DB_NAME", "payroll")
	t.Setenv("DB_RUN_MIGRATIONS", "false")
	t.Setenv("REDIS_URI", "redis.internal:6379")
	t.Setenv("CACHE_JOB_STATUS_TTL", "30m")
	t.Setenv("SERVICES", "http,worker")
	t.Setenv("PAYROLL_RETENTION_DAYS", "30")
	t.Setenv("PAYROLL_STUCK_JOB_TIMEOUT", "15m")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "3")
	t.Setenv("WEBHOOK_DELIVERY_TIMEOUT", "10s")
	t.Setenv("WEBHOOK_REQUIRE_PUBLIC_ENDPOINTS", "true")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("expected DB host db.internal, got %q", cfg.Postgres.Host)
	}
	if cfg.Postgres.Port != 5433 {
		t.Errorf("expected DB port 5433, got %d", cfg.Postgres.Port)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("expected RunMigrations false")
	}
	if cfg.Redis.URI != "redis.internal:6379" {
		t.Errorf("expected redis URI redis.internal:6379, got %q", cfg.Redis.URI)
	}
	if cfg.Cache.StatusTTL != 30*time.Minute {
		t.Errorf("expected status TTL 30m, got %v", cfg.Cache.StatusTTL)
	}
	if cfg.Services != "http,worker" {
		t.Errorf("expected services http,worker, got %q", cfg.Services)
	}
	if cfg.Payroll.RetentionDays != 30 {
		t.Errorf("expected retention 30 days, got %d", cfg.Payroll.RetentionDays)
	}
	if cfg.Payroll.StuckJobTimeout != 15*time.Minute {
		t.Errorf("expected stuck timeout 15m, got %v", cfg.Payroll.StuckJobTimeout)
	}
	if cfg.Webhooks.MaxAttempts != 3 {
		t.Errorf("expected 3 webhook attempts, got %d", cfg.Webhooks.MaxAttempts)
	}
	if cfg.Webhooks.DeliveryTimeout != 10*time.Second {
		t.Errorf("expected 10s delivery timeout, got %v", cfg.Webhooks.DeliveryTimeout)
	}
	if !cfg.Webhooks.RequirePublicEndpoints {
		t.Error("expected public endpoint enforcement on")
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http" {
		t.Errorf("expected default services http, got %q", cfg.Services)
	}
	if cfg.Payroll.BatchPriority != 10 {
		t.Errorf("expected default batch priority 10, got %d", cfg.Payroll.BatchPriority)
	}
	if cfg.Payroll.RetentionAge() != 90*24*time.Hour {
		t.Errorf("expected 90 day retention, got %v", cfg.Payroll.RetentionAge())
	}
	if cfg.Webhooks.MaxAttempts != 5 {
		t.Errorf("expected default 5 attempts, got %d", cfg.Webhooks.MaxAttempts)
	}
	if cfg.Scheduler.Interval != time.Second {
		t.Errorf("expected 1s scheduler interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Reaper.Interval != 5*time.Minute {
		t.Errorf("expected 5m reaper interval, got %v", cfg.Reaper.Interval)
	}
}

func TestSanitizeClamps(t *testing.T) {
	t.Run("reaper", func(t *testing.T) {
		cfg := ReaperConfig{
			Interval:         time.Second,
			PendingMaxAge:    time.Second,
			CompletedMaxAge:  time.Minute,
			FailedMaxAge:     time.Minute,
			DeliveriesMaxAge: time.Hour,
			BatchSize:        50000,
		}
		cfg.Sanitize()

		if cfg.Interval < time.Minute {
			t.Errorf("expected interval clamped to >= 1m, got %v", cfg.Interval)
		}
		if cfg.PendingMaxAge < 5*time.Minute {
			t.Errorf("expected pending max age clamped, got %v", cfg.PendingMaxAge)
		}
		if cfg.DeliveriesMaxAge < 24*time.Hour {
			t.Errorf("expected deliveries max age clamped, got %v", cfg.DeliveriesMaxAge)
		}
		if cfg.BatchSize > 10000 {
			t.Errorf("expected batch size capped at 10000, got %d", cfg.BatchSize)
		}
	})

	t.Run("worker", func(t *testing.T) {
		cfg := WorkerConfig{TaskLease: time.Second, ClaimWait: 0}
		cfg.Sanitize()

		if cfg.PayrollConcurrency < 1 || cfg.WebhookConcurrency < 1 || cfg.MaintenanceConcurrency < 1 {
			t.Errorf("expected concurrency clamped to >= 1, got %+v", cfg)
		}
		if cfg.TaskLease < 5*time.Second {
			t.Errorf("expected task lease clamped to >= 5s, got %v", cfg.TaskLease)
		}
		if cfg.ClaimWait < time.Second {
			t.Errorf("expected claim wait clamped to >= 1s, got %v", cfg.ClaimWait)
		}
	})

	t.Run("webhooks", func(t *testing.T) {
		cfg := WebhooksConfig{
			DeliveryTimeout: -1,
			MaxAttempts:     0,
			RetryBackoff:    2 * time.Hour,
			RetryBackoffMax: time.Minute,
		}
		cfg.Sanitize()

		if cfg.DeliveryTimeout <= 0 {
			t.Errorf("expected delivery timeout defaulted, got %v", cfg.DeliveryTimeout)
		}
		if cfg.MaxAttempts < 1 {
			t.Errorf("expected max attempts clamped, got %d", cfg.MaxAttempts)
		}
		if cfg.RetryBackoffMax < cfg.RetryBackoff {
			t.Errorf("expected backoff cap raised to base, got %v < %v", cfg.RetryBackoffMax, cfg.RetryBackoff)
		}
	})

	t.Run("paycalc trims base url", func(t *testing.T) {
		cfg := PaycalcConfig{BaseURL: " https://paycalc.internal/ "}
		cfg.Sanitize()

		if cfg.BaseURL != "https://paycalc.internal" {
			t.Errorf("expected trimmed base url, got %q", cfg.BaseURL)
		}
		if cfg.Timeout <= 0 {
			t.Errorf("expected timeout defaulted, got %v", cfg.Timeout)
		}
	})
}

func TestDetectDevMode(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg := AppConfig{Services: "http"}
	cfg.Sanitize()

	if !cfg.IsDev {
		t.Error("expected dev mode from APP_ENV")
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "paymaster" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "paymaster" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
