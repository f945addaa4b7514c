// Package events connects the alerting engine to Kafka: inbound CRM triggers
// are consumed from one topic and notification lifecycle changes are published
// to another.
package events

import (
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config describes the broker connection and topics.
type Config struct {
	Brokers        []string
	GroupID        string
	TriggerTopic   string
	LifecycleTopic string
	TLS            bool
	DialTimeout    time.Duration
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("events: at least one broker is required")
	}
	return nil
}

func (c Config) dialer() *kafka.Dialer {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &kafka.Dialer{Timeout: timeout, DualStack: true}
	if c.TLS {
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return dialer
}

// NewReader builds a consumer group reader for the trigger topic.
func NewReader(cfg Config) (*kafka.Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.TriggerTopic) == "" {
		return nil, errors.New("events: trigger topic is required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "salesalert"
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.TriggerTopic,
		GroupID:  groupID,
		Dialer:   cfg.dialer(),
		MaxBytes: 10e6,
	}), nil
}

// NewWriter builds a writer for the lifecycle topic.
func NewWriter(cfg Config) (*kafka.Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.LifecycleTopic) == "" {
		return nil, errors.New("events: lifecycle topic is required")
	}
	transport := &kafka.Transport{DialTimeout: cfg.dialer().Timeout}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.LifecycleTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}, nil
}
