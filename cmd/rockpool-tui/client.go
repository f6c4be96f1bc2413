package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Wire types for the habitat host REST API. Field sets are the host's;
// anything the host adds later is ignored by decoding.

type entitySummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	ThoughtCount int    `json:"thought_count"`
}

type roomPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type entityStatus struct {
	State        string       `json:"state"`
	ThoughtCount int          `json:"thought_count"`
	Name         string       `json:"name"`
	Position     roomPosition `json:"position"`
	FocusMode    bool         `json:"focus_mode"`
	Model        string       `json:"model"`
	MemoryCount  int          `json:"memory_count"`
}

type identityTraits struct {
	Temperament    string   `json:"temperament"`
	Domains        []string `json:"domains"`
	ThinkingStyles []string `json:"thinking_styles"`
}

type entityIdentity struct {
	Name   string         `json:"name"`
	Genome string         `json:"genome"`
	Born   string         `json:"born"`
	Traits identityTraits `json:"traits"`
}

// callRecord is one think cycle: input is the cumulative history the entity
// reasoned over, output is the delta it produced.
type callRecord struct {
	Timestamp    string       `json:"timestamp"`
	Instructions string       `json:"instructions"`
	Input        []inputItem  `json:"input"`
	Output       []outputItem `json:"output"`
	IsDream      bool         `json:"is_dream"`
	IsPlanning   bool         `json:"is_planning"`
}

// inputItem is loosely shaped on the wire: user messages may carry no type
// field at all, and content is either a plain string or a part list.
type inputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name"`
	CallID  string          `json:"call_id"`
	Output  string          `json:"output"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url"`
}

type outputItem struct {
	Type      string       `json:"type"`
	Name      string       `json:"name"`
	Arguments string       `json:"arguments"`
	CallID    string       `json:"call_id"`
	Content   []outputPart `json:"content"`
}

type outputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// hostClient wraps the habitat host REST API. requests carries a hard
// timeout; streams must not, since the event stream is a long-lived body.
type hostClient struct {
	base     string
	requests *http.Client
	streams  *http.Client
}

func newHostClient(base string, timeout time.Duration) hostClient {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	return hostClient{
		base:     trimmed,
		requests: &http.Client{Timeout: timeout},
		streams:  &http.Client{},
	}
}

func (c hostClient) endpoint(path string, query url.Values) string {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func entityQuery(entityID string) url.Values {
	query := url.Values{}
	if strings.TrimSpace(entityID) != "" {
		query.Set("crab", entityID)
	}
	return query
}

func (c hostClient) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}
	resp, err := c.requests.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host returned %s for %s", resp.Status, path)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// postJSON sends a JSON body and returns the raw response body. The host
// reports application errors as {ok: false, error} with HTTP 200, so callers
// inspect the body rather than the status alone.
func (c hostClient) postJSON(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.requests.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return respBody, fmt.Errorf("host returned %s for %s", resp.Status, path)
	}
	okField := gjson.GetBytes(respBody, "ok")
	if okField.Exists() && !okField.Bool() {
		hostErr := gjson.GetBytes(respBody, "error").String()
		if hostErr == "" {
			hostErr = "request rejected"
		}
		return respBody, fmt.Errorf("%s: %s", path, hostErr)
	}
	return respBody, nil
}

func (c hostClient) entities(ctx context.Context) ([]entitySummary, error) {
	var list []entitySummary
	if err := c.getJSON(ctx, "/api/crabs", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c hostClient) createEntity(ctx context.Context, name string) (entitySummary, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "name", name)
	resp, err := c.postJSON(ctx, "/api/crabs", nil, body)
	if err != nil {
		return entitySummary{}, err
	}
	return entitySummary{
		ID:   gjson.GetBytes(resp, "id").String(),
		Name: gjson.GetBytes(resp, "name").String(),
	}, nil
}

func (c hostClient) recentRecords(ctx context.Context, entityID string, limit int) ([]callRecord, error) {
	query := entityQuery(entityID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []callRecord
	if err := c.getJSON(ctx, "/api/raw", query, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c hostClient) entityStatus(ctx context.Context, entityID string) (entityStatus, error) {
	var status entityStatus
	err := c.getJSON(ctx, "/api/status", entityQuery(entityID), &status)
	return status, err
}

func (c hostClient) entityIdentity(ctx context.Context, entityID string) (entityIdentity, error) {
	var identity entityIdentity
	err := c.getJSON(ctx, "/api/identity", entityQuery(entityID), &identity)
	return identity, err
}

func (c hostClient) envFiles(ctx context.Context, entityID string) ([]string, error) {
	var listing struct {
		Files []string `json:"files"`
	}
	if err := c.getJSON(ctx, "/api/files", entityQuery(entityID), &listing); err != nil {
		return nil, err
	}
	return listing.Files, nil
}

func (c hostClient) envFile(ctx context.Context, entityID, relPath string) (string, error) {
	var doc struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, "/api/files/"+escapePath(relPath), entityQuery(entityID), &doc); err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (c hostClient) sendMessage(ctx context.Context, entityID, text string) error {
	body, _ := sjson.SetBytes([]byte(`{}`), "text", text)
	_, err := c.postJSON(ctx, "/api/message", entityQuery(entityID), body)
	return err
}

func (c hostClient) setFocusMode(ctx context.Context, entityID string, enabled bool) error {
	body, _ := sjson.SetBytes([]byte(`{}`), "enabled", enabled)
	_, err := c.postJSON(ctx, "/api/focus-mode", entityQuery(entityID), body)
	return err
}

func (c hostClient) sendSnapshot(ctx context.Context, entityID, image string) error {
	body, _ := sjson.SetBytes([]byte(`{}`), "image", image)
	_, err := c.postJSON(ctx, "/api/snapshot", entityQuery(entityID), body)
	return err
}

// openStream attaches the live NDJSON event stream for one entity. The caller
// owns the returned body and must close it; cancelling ctx also tears it down.
func (c hostClient) openStream(ctx context.Context, entityID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/stream", entityQuery(entityID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.streams.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("host returned %s for /api/stream", resp.Status)
	}
	return resp.Body, nil
}

func escapePath(relPath string) string {
	segments := strings.Split(relPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
