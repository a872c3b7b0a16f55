package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/metrics"
)

// ErrNoSubscription is returned when a statuses-only update arrives for a
// user who never registered a subscription.
var ErrNoSubscription = errors.New("no subscription for this user")

// DefaultStatuses is the filter applied when a subscriber picks nothing.
var DefaultStatuses = []string{"paid"}

// Sender delivers one web-push message and reports the push service's HTTP
// status code.
type Sender interface {
	Send(ctx context.Context, sub *models.NotificationSubscription, payload []byte) (int, error)
}

// WebPushSender signs deliveries with the configured VAPID key pair.
type WebPushSender struct {
	cfg config.VAPIDConfig
}

func NewWebPushSender(cfg config.VAPIDConfig) *WebPushSender {
	return &WebPushSender{cfg: cfg}
}

func (s *WebPushSender) Send(ctx context.Context, sub *models.NotificationSubscription, payload []byte) (int, error) {
	res, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             60,
	})
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	return res.StatusCode, nil
}

// Service manages subscriptions and fans notifications out to them.
type Service struct {
	repo   Repository
	sender Sender
	cfg    config.VAPIDConfig
}

func NewService(repo Repository, sender Sender, cfg config.VAPIDConfig) *Service {
	return &Service{repo: repo, sender: sender, cfg: cfg}
}

// Configured reports whether both VAPID keys are present, plus the public
// key the frontend needs for its own subscribe call.
func (s *Service) Configured() (bool, string) {
	if s.cfg.PublicKey == "" || s.cfg.PrivateKey == "" {
		return false, ""
	}
	return true, s.cfg.PublicKey
}

// Preferences is the subscription state shown to the user.
type Preferences struct {
	Enabled         bool     `json:"enabled"`
	Statuses        []string `json:"statuses"`
	HasSubscription bool     `json:"hasSubscription"`
}

func (s *Service) GetPreferences(ctx context.Context, userID primitive.ObjectID) (*Preferences, error) {
	sub, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Preferences{Enabled: false, Statuses: DefaultStatuses, HasSubscription: false}, nil
	}
	statuses := sub.Statuses
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}
	return &Preferences{Enabled: true, Statuses: statuses, HasSubscription: true}, nil
}

// SubscribeParams is a subscribe/update request. A nil Subscription with
// Enabled false tears the registration down; a nil Subscription otherwise
// only updates the status filter.
type SubscribeParams struct {
	Enabled     *bool
	Statuses    []string
	Endpoint    string
	Keys        models.SubscriptionKeys
	HasEndpoint bool
}

func cleanStatuses(statuses []string) []string {
	if len(statuses) == 0 {
		return DefaultStatuses
	}
	return statuses
}

// Subscribe applies a subscription change for the user.
func (s *Service) Subscribe(ctx context.Context, userID primitive.ObjectID, params SubscribeParams) (*Preferences, error) {
	if params.Enabled != nil && !*params.Enabled {
		if err := s.repo.DeleteByUser(ctx, userID); err != nil {
			return nil, err
		}
		return &Preferences{Enabled: false}, nil
	}

	statuses := cleanStatuses(params.Statuses)

	if !params.HasEndpoint || params.Endpoint == "" || params.Keys.P256dh == "" || params.Keys.Auth == "" {
		ok, err := s.repo.UpdateStatuses(ctx, userID, statuses)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoSubscription
		}
		return &Preferences{Enabled: true, Statuses: statuses, HasSubscription: true}, nil
	}

	err := s.repo.Upsert(ctx, &models.NotificationSubscription{
		UserID:   userID,
		Endpoint: params.Endpoint,
		Keys:     params.Keys,
		Statuses: statuses,
	})
	if err != nil {
		return nil, err
	}
	return &Preferences{Enabled: true, Statuses: statuses, HasSubscription: true}, nil
}

// Payload is the notification content pushed to devices.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	URL   string `json:"url"`
}

// Dispatch sends the payload to every device subscribed to statusKey.
// Gone endpoints (404/410) are pruned; any other failure is logged and the
// loop continues.
func (s *Service) Dispatch(ctx context.Context, statusKey string, payload Payload) error {
	subs, err := s.repo.ListByStatus(ctx, statusKey)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	if payload.Icon == "" {
		payload.Icon = "/icons/icon-192.png"
	}
	if payload.Badge == "" {
		payload.Badge = "/icons/icon-192.png"
	}
	if payload.URL == "" {
		payload.URL = "/mobile"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for i := range subs {
		sub := &subs[i]
		code, err := s.sender.Send(ctx, sub, body)
		if err != nil {
			logger.Warnf("push delivery to user %s failed: %v", sub.UserID.Hex(), err)
			metrics.PushDeliveries.WithLabelValues("error").Inc()
			continue
		}
		metrics.PushDeliveries.WithLabelValues("sent").Inc()
		if code == http.StatusNotFound || code == http.StatusGone {
			if err := s.repo.DeleteByID(ctx, sub.ID); err != nil {
				logger.Warnf("prune dead subscription %s: %v", sub.ID.Hex(), err)
			}
		}
	}
	return nil
}
