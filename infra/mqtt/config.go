package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	AuthMethod  string `json:"auth_method"`
	// QoS per message kind: "command", "ack", "state", "control", "price".
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	AckTimeoutMS int             `json:"ack_timeout_ms"`
	// StaleAfterMS is the maximum age of a device state report before the
	// device is considered out of sync. Zero disables the check.
	StaleAfterMS int         `json:"stale_after_ms"`
	TLSConfig    *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "gridmarket"
	}
	if c.ClientID == "" {
		c.ClientID = "gridmarket"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.AckTimeoutMS <= 0 {
		c.AckTimeoutMS = 2000
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt: unknown auth_method %q", c.AuthMethod)
	}
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt: invalid qos %d for %s", q, k)
		}
	}
	return nil
}

// AckTimeout returns the acknowledgment timeout as a duration.
func (c Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMS) * time.Millisecond
}

// StaleAfter returns the maximum state age as a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMS) * time.Millisecond
}

// Topics returns the topic layout for the configured prefix.
func (c Config) Topics() Topics {
	return Topics{Prefix: strings.TrimSuffix(c.TopicPrefix, "/")}
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// Topics builds the topic names used by the market.
//
//	<prefix>/device/<id>/state     retained device state reports
//	<prefix>/device/<id>/command   plans written to a device
//	<prefix>/device/<id>/ack       command acknowledgments
//	<prefix>/market/<C>/control    ctrl_mode and target overrides
//	<prefix>/market/<C>/price      retained clearing results
//	<prefix>/node/<name>/<C>/control  local targets of an islanded node
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

func (t Topics) DeviceState(id string) string   { return t.join("device", id, "state") }
func (t Topics) DeviceCommand(id string) string { return t.join("device", id, "command") }
func (t Topics) DeviceAck() string              { return t.join("device", "+", "ack") }

func (t Topics) Control(c model.Commodity) string { return t.join("market", string(c), "control") }
func (t Topics) Price(c model.Commodity) string   { return t.join("market", string(c), "price") }

func (t Topics) NodeControl(node string, c model.Commodity) string {
	return t.join("node", node, string(c), "control")
}
