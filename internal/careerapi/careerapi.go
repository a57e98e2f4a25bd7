// Package careerapi fetches career snapshots from the remote career data API.
package careerapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/nudge"
)

const (
	userAgent       = "spigell/nudger"
	contentType     = "application/json"
	contentEncoding = "gzip"
	defaultTimeout  = 10 * time.Second
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(logger *zap.Logger, apiURL, token string) (*Client, error) {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		return nil, errors.New("career api url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:    logger,
		UserAgent: userAgent,
	}, nil
}

// CareerState is the payload of GET /users/{id}/career-state.
type CareerState struct {
	Profile      nudge.Profile       `json:"profile"`
	TargetSkills []string            `json:"target_skills"`
	LastActiveAt *time.Time          `json:"last_active_at"`
	Applications []nudge.Application `json:"applications"`
	Interviews   []nudge.Interview   `json:"interviews"`
	Goals        []nudge.Goal        `json:"goals"`
	Documents    []nudge.Document    `json:"documents"`
}

// Snapshot fetches the user's career state. A 404 means the API knows nothing
// about the user and yields an empty snapshot.
func (c *Client) Snapshot(ctx context.Context, userID string, now time.Time, loc *time.Location) (*nudge.Snapshot, error) {
	snap := &nudge.Snapshot{UserID: userID, Now: now, Location: loc}

	var state CareerState
	found, err := c.getJSON(ctx, fmt.Sprintf("%s/users/%s/career-state", c.APIURL, url.PathEscape(userID)), &state)
	if err != nil {
		return nil, fmt.Errorf("career state of %s: %w", userID, err)
	}
	if !found {
		c.logger.Debug("career api has no state for user", zap.String(logger.FieldUserID, userID))
		return snap, nil
	}

	snap.Profile = state.Profile
	snap.TargetSkills = state.TargetSkills
	snap.LastActiveAt = state.LastActiveAt
	snap.Applications = state.Applications
	snap.Interviews = state.Interviews
	snap.Goals = state.Goals
	snap.Documents = state.Documents

	return snap, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	c.setHeaders(req)
	req.Header.Set("Accept", contentType)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("bad status: %s", resp.Status)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return false, err
		}
		defer gz.Close()
		reader = gz
	}

	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	return true, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	// set explicitly, so the transport leaves the body compressed
	req.Header.Set("Accept-Encoding", contentEncoding)
}
