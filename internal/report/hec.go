package report

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balaji-balu/etcdcheck/internal/config"
	"github.com/balaji-balu/etcdcheck/internal/logger"
)

// SendTimeout bounds a single delivery attempt.
const SendTimeout = 10 * time.Second

// DeliveryError describes a failed POST to the collector. It is never fatal.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collector delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sender posts events to a HEC-style collector.
type Sender struct {
	cfg    config.CollectorConfig
	client *http.Client
	log    *logger.Logger
}

// NewSender returns nil when the collector is not fully configured.
func NewSender(cfg config.CollectorConfig, log *logger.Logger) *Sender {
	if !cfg.Enabled() {
		return nil
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: SendTimeout, Transport: transport},
		log:    log,
	}
}

// Send delivers one event. Exactly one attempt is made.
func (s *Sender) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(NewEnvelope(ev, s.cfg))
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("marshal event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Authorization", "Splunk "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Splunk-Request-Channel", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	s.log.Info("event delivered to collector",
		zap.String("url", s.cfg.URL),
		zap.String("index", s.cfg.Index),
		zap.String("status", ev.Status),
	)
	return nil
}
