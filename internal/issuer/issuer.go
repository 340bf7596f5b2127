// Package issuer talks to the card issuer's API.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/cardsettle/internal/request"
)

type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxElapsed time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		http:       &http.Client{Timeout: timeout},
		maxElapsed: 3 * timeout,
	}
}

type userUpdate struct {
	IsActive bool `json:"isActive"`
}

// DeactivateUser freezes every card of the user at the issuer. Server errors are retried;
// client errors are returned immediately.
func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	endpoint := fmt.Sprintf("%s/issuing/users/%s", c.baseURL, url.PathEscape(userID))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.maxElapsed

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		payload, err := request.ToJsonReq(userUpdate{IsActive: false})
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Api-Key", c.apiKey)

		_, err = request.Do(c.http, req, nil)
		if err == nil {
			logrus.WithField("user_id", userID).Warn("user deactivated at issuer")
			return nil
		}

		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"attempt": attempt,
		}).WithError(err).Warn("deactivate user failed")
		return err
	}, backoff.WithContext(policy, ctx))
}
