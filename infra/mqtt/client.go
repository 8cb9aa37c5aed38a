package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// PahoClient wraps an Eclipse Paho client with per-kind QoS, publish retries,
// command acknowledgment tracking and resubscription after reconnects.
type PahoClient struct {
	cli    pahoClient
	cfg    Config
	topics Topics
	logger logger.Logger

	mu       sync.Mutex
	ackChans map[string]chan string
	subs     map[string]subscription
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:      cfg,
		topics:   cfg.Topics(),
		logger:   log,
		ackChans: make(map[string]chan string),
		subs:     make(map[string]subscription),
	}
	pc.subs[pc.topics.DeviceAck()] = subscription{qos: pc.qos("ack"), handler: pc.onAck}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.resubscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.mu.Lock()
	pc.cli = c
	pc.mu.Unlock()
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// Topics returns the topic layout used by the client.
func (p *PahoClient) Topics() Topics { return p.topics }

// Config returns the effective client configuration.
func (p *PahoClient) Config() Config { return p.cfg }

func (p *PahoClient) qos(kind string) byte {
	if q, ok := p.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) resubscribe(c paho.Client) {
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for t, s := range p.subs {
		subs[t] = s
	}
	p.mu.Unlock()
	for topic, s := range subs {
		if token := c.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

// Subscribe registers handler for topic. The subscription is restored after
// every reconnect.
func (p *PahoClient) Subscribe(topic, kind string, handler paho.MessageHandler) error {
	s := subscription{qos: p.qos(kind), handler: handler}
	p.mu.Lock()
	p.subs[topic] = s
	cli := p.cli
	p.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return nil
	}
	if token := cli.Subscribe(topic, s.qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Publish sends payload to topic with the QoS configured for kind, retrying
// with exponential backoff.
func (p *PahoClient) Publish(topic, kind string, retained bool, payload []byte) error {
	p.mu.Lock()
	cli := p.cli
	p.mu.Unlock()
	if cli == nil {
		return ErrNotConnected
	}
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := cli.Publish(topic, p.qos(kind), retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish to %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Setpoint is the wire form of a plan entry.
type Setpoint struct {
	Timestamp   time.Time `json:"timestamp"`
	PowerW      float64   `json:"power_w"`
	ReactiveVar float64   `json:"reactive_var,omitempty"`
}

// Command is the payload written to a device command topic.
type Command struct {
	CommandID string                         `json:"command_id"`
	DeviceID  string                         `json:"device_id"`
	Timestamp int64                          `json:"timestamp"`
	Plan      map[model.Commodity][]Setpoint `json:"plan"`
}

// NewCommand converts a plan to its wire form.
func NewCommand(deviceID string, plan model.Plan) Command {
	cmd := Command{
		CommandID: uuid.NewString(),
		DeviceID:  deviceID,
		Timestamp: time.Now().UnixMilli(),
		Plan:      make(map[model.Commodity][]Setpoint, len(plan)),
	}
	for c, entries := range plan {
		sps := make([]Setpoint, len(entries))
		for i, e := range entries {
			sps[i] = Setpoint{Timestamp: e.Timestamp, PowerW: real(e.Power), ReactiveVar: imag(e.Power)}
		}
		cmd.Plan[c] = sps
	}
	return cmd
}

// SendCommand writes the plan to the device command topic and returns the
// command identifier used for acknowledgment tracking.
func (p *PahoClient) SendCommand(deviceID string, plan model.Plan) (string, error) {
	cmd := NewCommand(deviceID, plan)
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.ackChans[cmd.CommandID] = make(chan string, 1)
	p.mu.Unlock()

	topic := p.topics.DeviceCommand(deviceID)
	if err := p.Publish(topic, "command", false, payload); err != nil {
		p.mu.Lock()
		delete(p.ackChans, cmd.CommandID)
		p.mu.Unlock()
		return "", err
	}
	p.logger.Debugf("sent command %s to %s", cmd.CommandID, topic)
	return cmd.CommandID, nil
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[m.CommandID]
	if ok {
		select {
		case ch <- m.Error:
		default:
		}
	}
	p.mu.Unlock()
}

// WaitForAck blocks until an ACK for the given command ID is received, the
// timeout expires or ctx is done. A device rejecting the command returns
// false with the reported error.
func (p *PahoClient) WaitForAck(ctx context.Context, commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown command %s", commandID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reason := <-ch:
		if reason != "" {
			return false, fmt.Errorf("command %s rejected: %s", commandID, reason)
		}
		return true, nil
	case <-timer.C:
		return false, fmt.Errorf("command %s: %w", commandID, ErrAckTimeout)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	p.mu.Lock()
	cli := p.cli
	p.mu.Unlock()
	if cli != nil && cli.IsConnected() {
		cli.Disconnect(250)
	}
}
