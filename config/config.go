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
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
)

const (
	DEFAULT_PORT = "5001"

	// four weeks, the fixed-rate pool spacing of the credit market.
	DEFAULT_MATURITY_INTERVAL = 4 * 7 * 24 * 60 * 60
	DEFAULT_MIN_BORROW_INTERVAL = 7 * 24 * 60 * 60
	DEFAULT_PROPOSAL_DELAY      = 60
	// an authorization may wait this many proposal delays for its settlement
	DEFAULT_LOCK_LEASE_FACTOR = 10
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL    bool   `json:"ssl" envconfig:"CARDSETTLE_SERVER_SSL"`
	Domain string `json:"domain" envconfig:"CARDSETTLE_SERVER_SSL_DOMAIN"`
	Email  string `json:"ssl_email" envconfig:"CARDSETTLE_SERVER_SSL_EMAIL"`
	Port   string `json:"port" envconfig:"CARDSETTLE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CARDSETTLE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CARDSETTLE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CARDSETTLE_REDIS_SKIP_TLS_VERIFY"`
}

// ChainConfig holds everything needed to talk to the settlement chain.
type ChainConfig struct {
	RPCURL               string   `json:"rpc_url" envconfig:"CARDSETTLE_CHAIN_RPC_URL"`
	ChainID              int64    `json:"chain_id" envconfig:"CARDSETTLE_CHAIN_ID"`
	TokenAddress         string   `json:"token_address" envconfig:"CARDSETTLE_CHAIN_TOKEN_ADDRESS"`
	PluginAddress        string   `json:"plugin_address" envconfig:"CARDSETTLE_CHAIN_PLUGIN_ADDRESS"`
	MarketAddress        string   `json:"market_address" envconfig:"CARDSETTLE_CHAIN_MARKET_ADDRESS"`
	IssuerCheckerAddress string   `json:"issuer_checker_address" envconfig:"CARDSETTLE_CHAIN_ISSUER_CHECKER_ADDRESS"`
	Collectors           []string `json:"collectors" envconfig:"CARDSETTLE_CHAIN_COLLECTORS"`
	KeeperPrivateKey     string   `json:"keeper_private_key" envconfig:"CARDSETTLE_CHAIN_KEEPER_PRIVATE_KEY"`
	IssuerPrivateKey     string   `json:"issuer_private_key" envconfig:"CARDSETTLE_CHAIN_ISSUER_PRIVATE_KEY"`
	Decimals             int32    `json:"decimals" envconfig:"CARDSETTLE_CHAIN_DECIMALS"`
	ProposalDelaySec     int      `json:"proposal_delay_sec" envconfig:"CARDSETTLE_CHAIN_PROPOSAL_DELAY_SEC"`
	LockLeaseSec         int      `json:"lock_lease_sec" envconfig:"CARDSETTLE_CHAIN_LOCK_LEASE_SEC"`
	MaturityIntervalSec  int64    `json:"maturity_interval_sec" envconfig:"CARDSETTLE_CHAIN_MATURITY_INTERVAL_SEC"`
	MinBorrowIntervalSec int64    `json:"min_borrow_interval_sec" envconfig:"CARDSETTLE_CHAIN_MIN_BORROW_INTERVAL_SEC"`
	TimeoutSec           int      `json:"timeout_sec" envconfig:"CARDSETTLE_CHAIN_TIMEOUT_SEC"`
	ReceiptTimeoutSec    int      `json:"receipt_timeout_sec" envconfig:"CARDSETTLE_CHAIN_RECEIPT_TIMEOUT_SEC"`
}

// ProposalDelay bounds how long a webhook may wait for an account lock.
func (c ChainConfig) ProposalDelay() time.Duration {
	return time.Duration(c.ProposalDelaySec) * time.Second
}

// LockLease bounds how long an authorization may hold an account without a settlement arriving.
func (c ChainConfig) LockLease() time.Duration {
	return time.Duration(c.LockLeaseSec) * time.Second
}

func (c ChainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c ChainConfig) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSec) * time.Second
}

type IssuerConfig struct {
	ApiUrl        string `json:"api_url" envconfig:"CARDSETTLE_ISSUER_API_URL"`
	ApiKey        string `json:"api_key" envconfig:"CARDSETTLE_ISSUER_API_KEY"`
	WebhookSecret string `json:"webhook_secret" envconfig:"CARDSETTLE_ISSUER_WEBHOOK_SECRET"`
	TimeoutSec    int    `json:"timeout_sec" envconfig:"CARDSETTLE_ISSUER_TIMEOUT_SEC"`
}

type QueueConfig struct {
	PushQueue      string `json:"push_queue" envconfig:"CARDSETTLE_QUEUE_PUSH"`
	Concurrency    int    `json:"concurrency" envconfig:"CARDSETTLE_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"CARDSETTLE_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CARDSETTLE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CARDSETTLE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CARDSETTLE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// InstallmentsConfig parameterises the installment splitter's linear rate model.
type InstallmentsConfig struct {
	BaseRate string `json:"base_rate" envconfig:"CARDSETTLE_INSTALLMENTS_BASE_RATE"`
	Slope    string `json:"slope" envconfig:"CARDSETTLE_INSTALLMENTS_SLOPE"`
	Slippage string `json:"slippage" envconfig:"CARDSETTLE_INSTALLMENTS_SLIPPAGE"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type PushWebhook struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack      SlackWebhook `json:"slack"`
	Push       PushWebhook  `json:"push"`
	PosthogKey string       `json:"posthog_key" envconfig:"CARDSETTLE_POSTHOG_KEY"`
}

type Configuration struct {
	ProjectName     string             `json:"project_name" envconfig:"CARDSETTLE_PROJECT_NAME"`
	EnableTelemetry bool               `json:"enable_telemetry" envconfig:"CARDSETTLE_ENABLE_TELEMETRY"`
	Server          ServerConfig       `json:"server"`
	DataSource      DataSourceConfig   `json:"data_source"`
	Redis           RedisConfig        `json:"redis"`
	Chain           ChainConfig        `json:"chain"`
	Issuer          IssuerConfig       `json:"issuer"`
	Queue           QueueConfig        `json:"queue"`
	Notification    Notification       `json:"notification"`
	RateLimit       RateLimitConfig    `json:"rate_limit"`
	Installments    InstallmentsConfig `json:"installments"`
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
	err = envconfig.Process("cardsettle", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called cardsettle.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Card Settle"
	}

	if cnf.DataSource.Dns == "" {
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		return errors.New("redis DNS is required")
	}

	if cnf.Chain.RPCURL == "" {
		return errors.New("chain RPC URL is required")
	}

	if cnf.Issuer.WebhookSecret == "" {
		return errors.New("issuer webhook secret is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Chain.RPCURL = strings.TrimSpace(cnf.Chain.RPCURL)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Chain.addDefaults()

	if cnf.Issuer.TimeoutSec <= 0 {
		cnf.Issuer.TimeoutSec = 10
	}

	if cnf.Queue.PushQueue == "" {
		cnf.Queue.PushQueue = "push_notifications"
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	if cnf.Installments.BaseRate == "" {
		cnf.Installments.BaseRate = "0.05"
	}
	if cnf.Installments.Slope == "" {
		cnf.Installments.Slope = "0.2"
	}
	if cnf.Installments.Slippage == "" {
		cnf.Installments.Slippage = "0.02"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		cnf.RateLimit.RequestsPerSecond = ptr.Float64(float64(*cnf.RateLimit.Burst) / 2)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800)
	}

	return nil
}

func (c *ChainConfig) addDefaults() {
	if c.Decimals == 0 {
		c.Decimals = 6
	}
	if c.ProposalDelaySec <= 0 {
		c.ProposalDelaySec = DEFAULT_PROPOSAL_DELAY
		log.Printf("Warning: proposal delay not specified. Setting default value: %d seconds", DEFAULT_PROPOSAL_DELAY)
	}
	if c.LockLeaseSec <= 0 {
		c.LockLeaseSec = DEFAULT_LOCK_LEASE_FACTOR * c.ProposalDelaySec
	}
	if c.MaturityIntervalSec <= 0 {
		c.MaturityIntervalSec = DEFAULT_MATURITY_INTERVAL
	}
	if c.MinBorrowIntervalSec <= 0 {
		c.MinBorrowIntervalSec = DEFAULT_MIN_BORROW_INTERVAL
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 5
	}
	if c.ReceiptTimeoutSec <= 0 {
		c.ReceiptTimeoutSec = 60
	}
	for i, collector := range c.Collectors {
		c.Collectors[i] = strings.TrimSpace(collector)
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
