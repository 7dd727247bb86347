package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/gcp"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("at least one pubsub subscription is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps a Pub/Sub v2 client bound to one project. Each binary only
// consumes one subscription, but Ping checks every configured one so a
// misnamed subscription fails startup rather than the first pull.
type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{ps: ps, project: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", project), "pubsub client initialized")
	}
	return c, nil
}

// subscriptions lists the configured subscription ids, skipping blanks.
func (c *Client) subscriptions() []string {
	var ids []string
	for _, id := range []string{
		c.cfg.TransfersSubscription,
		c.cfg.NotificationSubscription,
		c.cfg.AnalyticsSubscription,
	} {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Ping verifies every configured subscription exists and is readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	ids := c.subscriptions()
	if len(ids) == 0 {
		return errNoSubscriptions
	}
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, c.checkSubscription(ctx, id))
	}
	return errs
}

func (c *Client) checkSubscription(ctx context.Context, id string) error {
	_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: gcp.ResourceName(c.project, "subscriptions", id),
	})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("subscription %q does not exist", id)
	default:
		return fmt.Errorf("checking subscription %q: %w", id, err)
	}
}

// Subscription returns a subscriber for an id or full resource name, or nil
// when the name is blank.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	full := gcp.ResourceName(c.project, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.ps.Subscriber(full)
}

// TransfersSubscription feeds the transfer worker.
func (c *Client) TransfersSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.TransfersSubscription)
}

// NotificationSubscription feeds the notification worker off the settlement topic.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// AnalyticsSubscription feeds the BigQuery fact writer off the settlement topic.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher for a topic id or full resource name, or nil
// when the name is blank.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	full := gcp.ResourceName(c.project, "topics", topic)
	if full == "" {
		return nil
	}
	return c.ps.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}
