package backend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSClient wraps the NATS connection used for the change feed.
type NATSClient struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes a connection to the NATS server.
func ConnectNATS(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	// Add TLS configuration if certificates are provided
	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	// Add token authentication if provided
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{conn: nc, logger: log}, nil
}

// Conn returns the underlying NATS connection.
func (c *NATSClient) Conn() *nats.Conn {
	return c.conn
}

// Close closes the NATS connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected returns true if connected to NATS.
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// NATSFeed implements Feed over core NATS publish/subscribe. Each
// (table, conversation) pair maps to one subject; the caller-supplied channel
// name identifies the subscription for logging and teardown.
type NATSFeed struct {
	client *NATSClient
	logger *logger.Logger
}

// NewNATSFeed creates a change feed over an established NATS connection.
func NewNATSFeed(client *NATSClient, log *logger.Logger) *NATSFeed {
	return &NATSFeed{client: client, logger: log}
}

func feedSubject(f Filter) string {
	if f.ConversationID == "" {
		return fmt.Sprintf("chg.%s.all", f.Table)
	}
	return fmt.Sprintf("chg.%s.%s", f.Table, f.ConversationID)
}

// Publish emits a row change for the given scope.
func (f *NATSFeed) Publish(ctx context.Context, filter Filter, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.conn.Publish(feedSubject(filter), data); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe registers fn for changes matching the filter. An empty events
// slice delivers all event types.
func (f *NATSFeed) Subscribe(channel string, filter Filter, events []EventType, fn func(ChangeEvent)) (Subscription, error) {
	allowed := make(map[EventType]bool, len(events))
	for _, e := range events {
		allowed[e] = true
	}

	log := f.logger.With(zap.String("channel", channel), zap.String("table", filter.Table))

	sub, err := f.client.conn.Subscribe(feedSubject(filter), func(msg *nats.Msg) {
		var event ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error("failed to decode change event", zap.Error(err))
			return
		}
		if len(allowed) > 0 && !allowed[event.Event] {
			return
		}
		metrics.FeedEventsTotal.WithLabelValues(event.Table, string(event.Event)).Inc()
		fn(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	metrics.FeedSubscriptionsActive.Inc()
	log.Debug("feed subscription established")

	return &natsSubscription{sub: sub, channel: channel, logger: log}, nil
}

type natsSubscription struct {
	sub     *nats.Subscription
	channel string
	logger  *logger.Logger
	once    sync.Once
}

// Unsubscribe tears down the subscription. Safe to call more than once.
func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		metrics.FeedSubscriptionsActive.Dec()
		s.logger.Debug("feed subscription released")
		err = s.sub.Unsubscribe()
	})
	return err
}
