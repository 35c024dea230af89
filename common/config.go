// Copyright 2025-2026 The streambench Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import "github.com/spf13/viper"

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Session Bridge Related Config

// BridgeConfig defines tuning parameters of the per-session bridge loops
type BridgeConfig struct {
	// RelayIdleTimeout is the max duration in seconds the prediction relay
	// waits for a new client reply before terminating on its own
	RelayIdleTimeout int `mapstructure:"relay_idle_timeout_sec" json:"relay_idle_timeout_sec" validate:"gte=1"`
	// PollInterval is the inbound feed / reply stream poll interval in msec
	PollInterval int `mapstructure:"poll_interval_msec" json:"poll_interval_msec" validate:"gte=1"`
	// SendPause is the pause in msec after forwarding a record to the client,
	// bounding the publish rate toward one client
	SendPause int `mapstructure:"send_pause_msec" json:"send_pause_msec" validate:"gte=0"`
	// GraceIntervals is how many prediction time intervals past the
	// competition end date a session remains open for late predictions
	GraceIntervals int `mapstructure:"grace_intervals" json:"grace_intervals" validate:"gte=0"`
}

// ===============================================================================
// Backing Store Related Config

// MetadataStoreConfig defines parameters of the competition metadata store
type MetadataStoreConfig struct {
	// DBPath is the path to the SQLite database file
	DBPath string `mapstructure:"db_path" json:"db_path" validate:"required"`
	// PoolSize is the number of pooled SQLite connections
	PoolSize int `mapstructure:"pool_size" json:"pool_size" validate:"gte=1"`
}

// ResultsStoreConfig defines parameters for connecting to the results store
type ResultsStoreConfig struct {
	// Addr is the Redis server host:port
	Addr string `mapstructure:"addr" json:"addr" validate:"required,hostname_port"`
	// DB is the Redis logical database
	DB int `mapstructure:"db" json:"db" validate:"gte=0"`
	// Password is the Redis AUTH password
	Password string `mapstructure:"password" json:"-"`
}

// ===============================================================================
// Session Token Related Config

// TokenConfig defines session token verification parameters
type TokenConfig struct {
	// SigningSecret is the shared HMAC secret subscription tokens are signed with
	SigningSecret string `mapstructure:"signing_secret" json:"-" validate:"required"`
}

// ===============================================================================
// Provider Server Related Config

// ProviderEndpointConfig defines provider API endpoint config
type ProviderEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the provider APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ProviderServerConfig defines configuration for the provider API server
type ProviderServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the provider API server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the provider API server
	Endpoints ProviderEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config of the provider process
type SystemConfig struct {
	// NATS are the NATS related config parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required,dive"`
	// Provider are the provider API server configs
	Provider *ProviderServerConfig `mapstructure:"provider,omitempty" json:"provider,omitempty" validate:"omitempty,dive"`
	// Bridge are the per-session bridge tuning parameters
	Bridge BridgeConfig `mapstructure:"bridge" json:"bridge" validate:"required,dive"`
	// Metadata are the competition metadata store parameters
	Metadata MetadataStoreConfig `mapstructure:"metadata" json:"metadata" validate:"required,dive"`
	// Results are the results store connection parameters
	Results ResultsStoreConfig `mapstructure:"results" json:"results" validate:"required,dive"`
	// Token are the session token verification parameters
	Token TokenConfig `mapstructure:"token" json:"token" validate:"required,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default NATS settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)

	// Default session bridge settings
	viper.SetDefault("bridge.relay_idle_timeout_sec", 30)
	viper.SetDefault("bridge.poll_interval_msec", 50)
	viper.SetDefault("bridge.send_pause_msec", 10)
	viper.SetDefault("bridge.grace_intervals", 5)

	// Default backing store settings
	viper.SetDefault("metadata.db_path", "provider.sqlite")
	viper.SetDefault("metadata.pool_size", 4)
	viper.SetDefault("results.addr", "127.0.0.1:6379")
	viper.SetDefault("results.db", 0)

	// Default Provider server settings
	viper.SetDefault("provider.endpoint_config.path_prefix", "/")
	viper.SetDefault("provider.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("provider.api_server.server_config.listen_port", 3000)
	viper.SetDefault("provider.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("provider.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("provider.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"provider.api_server.logging_config.request_id_header", "Provider-Request-ID",
	)
	viper.SetDefault(
		"provider.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
}
