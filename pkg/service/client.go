// Package service talks to the READ entity services that persist segments,
// syllable links and segment ordinals.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	endpointSave        = "services/saveEntityData.php"
	endpointDelete      = "services/deleteEntity.php"
	endpointOrder       = "services/orderSegment.php"
	endpointLinkOrdered = "services/linkOrderedSegments.php"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	DB         string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	db         string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("service base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid service base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/") + "/",
		db:         opts.DB,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SaveSegments stores new or changed segment geometry. Rows whose ID is a
// "newN" label come back with a real id in the segment table's tempIDMap.
func (c *Client) SaveSegments(ctx context.Context, recs []SegmentRecord) (*SaveResult, error) {
	return c.save(ctx, SaveRequest{Seg: recs})
}

// SaveSyllableLinks points syllable clusters at segments.
func (c *Client) SaveSyllableLinks(ctx context.Context, recs []SyllableRecord) (*SaveResult, error) {
	return c.save(ctx, SaveRequest{Scl: recs})
}

// SaveSegmentMappings stores the mapped segment ids of segment pairs.
func (c *Client) SaveSegmentMappings(ctx context.Context, recs []SegmentRecord) (*SaveResult, error) {
	return c.save(ctx, SaveRequest{Seg: recs})
}

func (c *Client) save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save request: %w", err)
	}
	body, err := c.sendRequest(ctx, endpointSave, url.Values{"data": {string(data)}})
	if err != nil {
		return nil, err
	}
	var res SaveResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode save response: %w", err)
	}
	if res.Error != "" {
		return &res, &Error{Endpoint: endpointSave, Messages: []string{res.Error}}
	}
	if res.Segment.Failed() || res.SyllableCluster.Failed() {
		var msgs []string
		if res.Segment != nil {
			msgs = append(msgs, res.Segment.Errors...)
		}
		if res.SyllableCluster != nil {
			msgs = append(msgs, res.SyllableCluster.Errors...)
		}
		return &res, &Error{Endpoint: endpointSave, Messages: msgs}
	}
	return &res, nil
}

// DeleteSegment removes a persisted segment.
func (c *Client) DeleteSegment(ctx context.Context, id int) (*CommandResponse, error) {
	data, err := json.Marshal(map[string][]int{"seg": {id}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delete request: %w", err)
	}
	return c.command(ctx, endpointDelete, url.Values{"data": {string(data)}})
}

// SetOrdinal numbers a segment within its baseline.
func (c *Client) SetOrdinal(ctx context.Context, segID, ord int) (*CommandResponse, error) {
	return c.command(ctx, endpointOrder, url.Values{
		"cmd":   {"setOrdinal"},
		"segID": {strconv.Itoa(segID)},
		"ord":   {strconv.Itoa(ord)},
	})
}

// ClearOrdinals removes the numbering of every segment of a baseline.
func (c *Client) ClearOrdinals(ctx context.Context, blnID int) (*CommandResponse, error) {
	return c.command(ctx, endpointOrder, url.Values{
		"cmd":   {"clearOrdinals"},
		"blnID": {strconv.Itoa(blnID)},
	})
}

// LinkOrderedSegments links numbered segments to edition syllables in
// reading order.
func (c *Client) LinkOrderedSegments(ctx context.Context, req LinkOrderedRequest) (*CommandResponse, error) {
	if req.EditionID <= 0 || len(req.BaselineIDs) == 0 {
		return nil, fmt.Errorf("link ordered segments needs an edition and a baseline")
	}
	form := url.Values{"ednID": {strconv.Itoa(req.EditionID)}}
	addInts(form, "blnIDs[]", req.BaselineIDs)
	addInts(form, "sclIDs[]", req.SclIDs)
	addInts(form, "segIDs[]", req.SegIDs)
	return c.command(ctx, endpointLinkOrdered, form)
}

func addInts(form url.Values, key string, ids []int) {
	for _, id := range ids {
		form.Add(key, strconv.Itoa(id))
	}
}

func (c *Client) command(ctx context.Context, endpoint string, form url.Values) (*CommandResponse, error) {
	body, err := c.sendRequest(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}
	var res CommandResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if msgs := res.messages(); !res.Success || len(msgs) > 0 {
		return &res, &Error{Endpoint: endpoint, Messages: msgs}
	}
	return &res, nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if c.db != "" {
		target += "?db=" + url.QueryEscape(c.db)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("service request", "endpoint", endpoint, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
