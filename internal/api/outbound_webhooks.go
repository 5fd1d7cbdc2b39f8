package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/annel0/plotmines/internal/eventbus"
	"github.com/annel0/plotmines/internal/logging"
)

// OutboundWebhook исходящий webhook, получающий события шахт
type OutboundWebhook struct {
	Name         string     `json:"name" yaml:"name"`
	URL          string     `json:"url" yaml:"url"`
	Secret       string     `json:"-" yaml:"secret"`
	Events       []string   `json:"events" yaml:"events"` // типы событий; "*" - все
	Timeout      int        `json:"timeout" yaml:"timeout"` // секунды
	RetryCount   int        `json:"retry_count" yaml:"retry_count"`
	LastUsed     *time.Time `json:"last_used,omitempty" yaml:"-"`
	FailureCount int        `json:"failure_count" yaml:"-"`
}

// OutboundWebhookManager пересылает события шины на внешние URL
type OutboundWebhookManager struct {
	webhooks   []*OutboundWebhook
	eventQueue chan *eventbus.Envelope
	mu         sync.RWMutex
	httpClient *http.Client
	serverID   string
	backoff    time.Duration
	wg         sync.WaitGroup
	sub        eventbus.Subscription
	closed     bool
}

// NewOutboundWebhookManager создает менеджер и запускает воркер отправки
func NewOutboundWebhookManager(serverID string, hooks []OutboundWebhook) *OutboundWebhookManager {
	manager := &OutboundWebhookManager{
		eventQueue: make(chan *eventbus.Envelope, 1000),
		serverID:   serverID,
		backoff:    time.Second,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, h := range hooks {
		h := h
		if h.Timeout == 0 {
			h.Timeout = 10
		}
		if h.RetryCount == 0 {
			h.RetryCount = 3
		}
		manager.webhooks = append(manager.webhooks, &h)
	}

	manager.wg.Add(1)
	go manager.eventWorker()
	return manager
}

// Attach подписывает менеджер на все события шины
func (owm *OutboundWebhookManager) Attach(bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		owm.SendEvent(ev)
	})
	if err != nil {
		return fmt.Errorf("подписка webhook'ов: %w", err)
	}
	owm.sub = sub
	return nil
}

// GetWebhooks возвращает копию списка webhook'ов
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	out := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, w := range owm.webhooks {
		out = append(out, *w)
	}
	return out
}

// SendEvent ставит событие в очередь отправки
func (owm *OutboundWebhookManager) SendEvent(ev *eventbus.Envelope) {
	owm.mu.RLock()
	defer owm.mu.RUnlock()
	if owm.closed {
		return
	}

	select {
	case owm.eventQueue <- ev:
	default:
		logging.Warn("⚠️ Очередь webhook'ов переполнена, событие %s пропущено", ev.EventType)
	}
}

// Close отписывается от шины и дожидается отправки очереди
func (owm *OutboundWebhookManager) Close() {
	if owm.sub != nil {
		owm.sub.Unsubscribe()
	}

	owm.mu.Lock()
	if owm.closed {
		owm.mu.Unlock()
		return
	}
	owm.closed = true
	close(owm.eventQueue)
	owm.mu.Unlock()

	owm.wg.Wait()
}

// eventWorker обрабатывает события из очереди
func (owm *OutboundWebhookManager) eventWorker() {
	defer owm.wg.Done()
	for ev := range owm.eventQueue {
		owm.processEvent(ev)
	}
}

// processEvent отправляет событие всем подписанным webhook'ам
func (owm *OutboundWebhookManager) processEvent(ev *eventbus.Envelope) {
	owm.mu.RLock()
	var targets []*OutboundWebhook
	for _, webhook := range owm.webhooks {
		if isSubscribedToEvent(webhook, ev.EventType) {
			targets = append(targets, webhook)
		}
	}
	owm.mu.RUnlock()

	for _, webhook := range targets {
		owm.sendToWebhook(webhook, ev)
	}
}

// isSubscribedToEvent проверяет, подписан ли webhook на событие
func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribedEvent := range webhook.Events {
		if subscribedEvent == eventType || subscribedEvent == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие конкретному webhook'у с повторами
func (owm *OutboundWebhookManager) sendToWebhook(webhook *OutboundWebhook, ev *eventbus.Envelope) {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		logging.Error("❌ Ошибка маршалинга события для webhook %s: %v", webhook.Name, err)
		return
	}

	success := false
	for attempt := 0; attempt <= webhook.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * owm.backoff)
		}

		status, err := owm.post(webhook, ev, jsonData)
		if err != nil {
			logging.Warn("⚠️ Попытка %d/%d для webhook %s: %v", attempt+1, webhook.RetryCount+1, webhook.Name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			logging.Debug("✅ Событие %s отправлено в webhook %s", ev.EventType, webhook.Name)
			break
		}
		logging.Warn("⚠️ Webhook %s вернул статус %d на попытке %d", webhook.Name, status, attempt+1)
	}

	owm.mu.Lock()
	now := time.Now()
	webhook.LastUsed = &now
	if !success {
		webhook.FailureCount++
	}
	owm.mu.Unlock()
}

func (owm *OutboundWebhookManager) post(webhook *OutboundWebhook, ev *eventbus.Envelope, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(webhook.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PlotMines/1.0")
	req.Header.Set("X-Event-Type", ev.EventType)
	req.Header.Set("X-Server-ID", owm.serverID)
	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(body, webhook.Secret))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// generateSignature генерирует HMAC подпись
func generateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
