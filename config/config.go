/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/wacul/ptr"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	defaultBackendTimeoutSec     = 30
	defaultCatalogRetries        = 3
	defaultSimulatedLatencyMs    = 2000
	defaultCurrency              = "USD"
	defaultMaxDocumentSizeBytes  = 5 << 20
	defaultKYCPollIntervalSec    = 60
	defaultWebhookQueue          = "new:webhook"
	defaultNumberOfQueueWorkers  = 5
	defaultCatalogCacheTTLSecond = 300
	defaultMonitoringPort        = "5004"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"VETFLOW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"VETFLOW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"VETFLOW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"VETFLOW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"VETFLOW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"VETFLOW_SERVER_PORT"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"VETFLOW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"VETFLOW_REDIS_SKIP_TLS_VERIFY"`
}

// BackendConfig points at the external verification API that owns the
// service catalog, document checks and final submissions.
type BackendConfig struct {
	BaseURL         string `json:"base_url" envconfig:"VETFLOW_BACKEND_URL"`
	Token           string `json:"token" envconfig:"VETFLOW_BACKEND_TOKEN"`
	TimeoutSec      int    `json:"timeout_sec" envconfig:"VETFLOW_BACKEND_TIMEOUT_SEC"`
	CatalogRetries  int    `json:"catalog_retries" envconfig:"VETFLOW_BACKEND_CATALOG_RETRIES"`
	CatalogCacheTTL int    `json:"catalog_cache_ttl_sec" envconfig:"VETFLOW_BACKEND_CATALOG_CACHE_TTL_SEC"`
}

type PaymentConfig struct {
	SimulatedLatencyMs int    `json:"simulated_latency_ms" envconfig:"VETFLOW_PAYMENT_SIMULATED_LATENCY_MS"`
	Currency           string `json:"currency" envconfig:"VETFLOW_PAYMENT_CURRENCY"`
}

type DocumentConfig struct {
	MaxSizeBytes int64 `json:"max_size_bytes" envconfig:"VETFLOW_DOCUMENT_MAX_SIZE_BYTES"`
}

// WalletConfig configures the signer used for optional document attestations.
// An empty private key disables attestations.
type WalletConfig struct {
	PrivateKey string `json:"private_key" envconfig:"VETFLOW_WALLET_PRIVATE_KEY"`
	ChainID    int64  `json:"chain_id" envconfig:"VETFLOW_WALLET_CHAIN_ID"`
}

type KYCConfig struct {
	ConfigPath      string `json:"config_path" envconfig:"VETFLOW_KYC_CONFIG_PATH"`
	PollIntervalSec int    `json:"poll_interval_sec" envconfig:"VETFLOW_KYC_POLL_INTERVAL_SEC"`
}

type QueueConfig struct {
	WebhookQueue    string `json:"webhook_queue" envconfig:"VETFLOW_QUEUE_WEBHOOK"`
	NumberOfWorkers int    `json:"number_of_workers" envconfig:"VETFLOW_QUEUE_NUMBER_OF_WORKERS"`
	MonitoringPort  string `json:"monitoring_port" envconfig:"VETFLOW_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"VETFLOW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"VETFLOW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"VETFLOW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"VETFLOW_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"VETFLOW_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string          `json:"project_name" envconfig:"VETFLOW_PROJECT_NAME"`
	EnableTelemetry bool            `json:"enable_telemetry" envconfig:"VETFLOW_ENABLE_TELEMETRY"`
	Server          ServerConfig    `json:"server"`
	Redis           RedisConfig     `json:"redis"`
	Backend         BackendConfig   `json:"backend"`
	Payment         PaymentConfig   `json:"payment"`
	Documents       DocumentConfig  `json:"documents"`
	Wallet          WalletConfig    `json:"wallet"`
	KYC             KYCConfig       `json:"kyc"`
	Queue           QueueConfig     `json:"queue"`
	Notification    Notification    `json:"notification"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("vetflow", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called vetflow.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Vetflow Server"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Backend.BaseURL), "/")

	if cnf.Backend.BaseURL == "" {
		log.Println("Error: Backend URL is empty. It's a required field.")
		return errors.New("backend URL is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Workflow state will be kept in memory only.")
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Backend.TimeoutSec <= 0 {
		cnf.Backend.TimeoutSec = defaultBackendTimeoutSec
	}
	if cnf.Backend.CatalogRetries < 0 {
		cnf.Backend.CatalogRetries = 0
	} else if cnf.Backend.CatalogRetries == 0 {
		cnf.Backend.CatalogRetries = defaultCatalogRetries
	}
	if cnf.Backend.CatalogCacheTTL <= 0 {
		cnf.Backend.CatalogCacheTTL = defaultCatalogCacheTTLSecond
	}

	if cnf.Payment.SimulatedLatencyMs < 0 {
		return errors.New("payment simulated latency cannot be negative")
	}
	if cnf.Payment.SimulatedLatencyMs == 0 {
		cnf.Payment.SimulatedLatencyMs = defaultSimulatedLatencyMs
	}
	if cnf.Payment.Currency == "" {
		cnf.Payment.Currency = defaultCurrency
	}

	if cnf.Documents.MaxSizeBytes <= 0 {
		cnf.Documents.MaxSizeBytes = defaultMaxDocumentSizeBytes
	}

	if cnf.KYC.PollIntervalSec <= 0 {
		cnf.KYC.PollIntervalSec = defaultKYCPollIntervalSec
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = defaultWebhookQueue
	}
	if cnf.Queue.NumberOfWorkers <= 0 {
		cnf.Queue.NumberOfWorkers = defaultNumberOfQueueWorkers
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = defaultMonitoringPort
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", *cnf.RateLimit.Burst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800) // 3 hours
	}

	return nil
}

// BackendTimeout is the upper bound for any single call to the backend API.
func (cnf *Configuration) BackendTimeout() time.Duration {
	return time.Duration(cnf.Backend.TimeoutSec) * time.Second
}

// SimulatedLatency is the artificial settlement delay of the payment step.
func (cnf *Configuration) SimulatedLatency() time.Duration {
	return time.Duration(cnf.Payment.SimulatedLatencyMs) * time.Millisecond
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
