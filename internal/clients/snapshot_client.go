package clients

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/pkg/retrier"
	"go.uber.org/zap"
)

const (
	defaultFeedTimeout = 10 * time.Second
	maxBodySize        = 16 << 20
)

// ErrNoData is returned when the feed answered but carried no usable snapshot.
var ErrNoData = errors.New("feed returned no position snapshot")

// FeedSnapshot is the inner snapshot object of one feed response.
type FeedSnapshot struct {
	Raw       []byte
	CreatedAt string
}

// SnapshotFetcher fetches the current position snapshot of a profile.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, slug string) (FeedSnapshot, error)
}

// SnapshotClient reads live position snapshots from the verified-positions feed.
type SnapshotClient struct {
	urlTemplate string
	userAgent   string
	httpClient  *http.Client
	retrier     *retrier.Retrier
}

// NewSnapshotClient creates a client for urlTemplate, which must contain {slug}.
func NewSnapshotClient(urlTemplate, userAgent string, timeout time.Duration, maxRetries int, logger *zap.Logger) *SnapshotClient {
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SnapshotClient{
		urlTemplate: urlTemplate,
		userAgent:   userAgent,
		httpClient:  &http.Client{Timeout: timeout},
		retrier: retrier.New(
			retrier.WithMaxRetries(maxRetries),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxInterval(5*time.Second),
			retrier.WithRetryIf(func(err error) bool { return !errors.Is(err, ErrNoData) }),
			retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
				logger.Warn("retrying snapshot fetch",
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
					zap.Error(err))
			}),
		),
	}
}

// Fetch returns the snapshot object found at payload.position_snapshot_data.
func (c *SnapshotClient) Fetch(ctx context.Context, slug string) (FeedSnapshot, error) {
	if slug == "" {
		return FeedSnapshot{}, errors.New("profile slug is empty")
	}

	endpoint := strings.ReplaceAll(c.urlTemplate, "{slug}", url.PathEscape(slug))

	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (FeedSnapshot, error) {
		return c.fetchOnce(ctx, endpoint)
	})
}

func (c *SnapshotClient) fetchOnce(ctx context.Context, endpoint string) (FeedSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FeedSnapshot{}, retrier.Permanent(errors.Wrap(err, "failed to create HTTP request"))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FeedSnapshot{}, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return FeedSnapshot{}, errors.Wrap(err, "failed to read response body")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return FeedSnapshot{}, errors.Errorf("feed returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return FeedSnapshot{}, retrier.Permanent(errors.Errorf("feed returned status %d", resp.StatusCode))
	}

	return decodeEnvelope(body)
}

func decodeEnvelope(body []byte) (FeedSnapshot, error) {
	envelope, err := simplejson.NewJson(body)
	if err != nil {
		return FeedSnapshot{}, errors.Wrap(err, "failed to decode feed response")
	}

	if ok, _ := envelope.Get("success").Bool(); !ok {
		return FeedSnapshot{}, ErrNoData
	}

	data, ok := envelope.Get("payload").CheckGet("position_snapshot_data")
	if !ok {
		return FeedSnapshot{}, ErrNoData
	}
	if _, err := data.Map(); err != nil {
		return FeedSnapshot{}, ErrNoData
	}

	raw, err := data.MarshalJSON()
	if err != nil {
		return FeedSnapshot{}, errors.Wrap(err, "failed to encode position snapshot")
	}

	return FeedSnapshot{
		Raw:       raw,
		CreatedAt: data.Get("created_at").MustString(),
	}, nil
}
