package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected = "mqtt_disconnected"
	AlertStoreUnavailable = "store_unavailable"
	AlertRunAborted       = "run_aborted"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	RunID     string                 `json:"run_id"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL string
	RunID      string
	// MQTTDelay is how long the broker must be down before alerting.
	MQTTDelay time.Duration
	// StoreDelay is how long the store must be down before alerting.
	StoreDelay time.Duration
}

// outage tracks one dependency and alerts once per outage that outlasts
// its delay, then once on recovery.
type outage struct {
	event    string
	severity string
	message  string
	delay    time.Duration
	down     bool
	since    time.Time
	alerted  bool
}

type alertFunc func(event, severity, message string, details map[string]interface{})

func (o *outage) observe(connected bool, now time.Time, send alertFunc) {
	if connected {
		if o.down && o.alerted {
			send(o.event, SeverityInfo, o.message+" restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.down, o.alerted, o.since = false, false, time.Time{}
		return
	}
	if !o.down {
		o.down = true
		o.since = now
	}
	if o.alerted {
		return
	}
	if d := now.Sub(o.since); d >= o.delay {
		o.alerted = true
		send(o.event, o.severity, o.message+" unavailable", map[string]interface{}{
			"disconnected_since":   o.since.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(d.Seconds()),
		})
	}
}

var (
	alertMu     sync.Mutex
	alertConfig = AlertConfig{MQTTDelay: 30 * time.Second, StoreDelay: 5 * time.Second}
	mqttOutage  *outage
	storeOutage *outage
	httpClient  = &http.Client{Timeout: 10 * time.Second}
)

// InitAlerts configures the webhook and resets outage tracking. Both
// dependencies start out connected.
func InitAlerts(cfg AlertConfig) {
	alertMu.Lock()
	defer alertMu.Unlock()

	if cfg.MQTTDelay <= 0 {
		cfg.MQTTDelay = 30 * time.Second
	}
	if cfg.StoreDelay <= 0 {
		cfg.StoreDelay = 5 * time.Second
	}
	alertConfig = cfg
	mqttOutage = &outage{event: AlertMQTTDisconnected, severity: SeverityWarning, message: "MQTT broker", delay: cfg.MQTTDelay}
	storeOutage = &outage{event: AlertStoreUnavailable, severity: SeverityCritical, message: "run store", delay: cfg.StoreDelay}

	if cfg.WebhookURL != "" {
		log.Printf("Alerts enabled (mqtt_delay=%s, store_delay=%s)", cfg.MQTTDelay, cfg.StoreDelay)
	}
}

// GetAlertWebhookURL returns the configured webhook URL.
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert posts an alert to the webhook in the background, or logs it
// when no webhook is configured.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	cfg := alertConfig
	alertMu.Unlock()
	sendAlert(cfg, event, severity, message, details)
}

func sendAlert(cfg AlertConfig, event, severity, message string, details map[string]interface{}) {
	url := cfg.WebhookURL
	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}
	payload := AlertPayload{
		RunID:     cfg.RunID,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	go sendWebhook(url, payload)
}

func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// CheckAlerts feeds the current dependency states to the outage trackers.
// Optional dependencies never alert. It does nothing before InitAlerts.
func CheckAlerts(now time.Time) {
	readiness.mu.RLock()
	mqttUp := readiness.mqttConnected || readiness.mqttOptional
	storeUp := readiness.storeConnected || readiness.storeOptional
	readiness.mu.RUnlock()

	alertMu.Lock()
	defer alertMu.Unlock()
	if mqttOutage == nil {
		return
	}
	cfg := alertConfig
	send := func(event, severity, message string, details map[string]interface{}) {
		sendAlert(cfg, event, severity, message, details)
	}
	mqttOutage.observe(mqttUp, now, send)
	storeOutage.observe(storeUp, now, send)
}

// AlertRunAbort reports an aborted run.
func AlertRunAbort(reason string) {
	SendAlert(AlertRunAborted, SeverityWarning, "run aborted", map[string]interface{}{"reason": reason})
}

// StartAlertMonitor checks the dependencies every interval until done is
// closed.
func StartAlertMonitor(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				CheckAlerts(now)
			}
		}
	}()
}
