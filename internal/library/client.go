// Package library is a client for the hosted reference-library web API
// (Zotero API v3).
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"paperbridge/internal/codec"
	"paperbridge/internal/models"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	httpTimeoutEnvKey  = "PAPERBRIDGE_HTTP_TIMEOUT"

	apiVersion = "3"
	pageSize   = 100

	// writeBatchSize is the most objects the API accepts in one write.
	writeBatchSize = 50
)

// Client talks to a single user or group library.
type Client struct {
	baseURL string
	prefix  string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the library identified by libraryType
// ("user" or "group") and libraryID.
func NewClient(baseURL, libraryType, libraryID, apiKey string) *Client {
	kind := "users"
	if strings.EqualFold(strings.TrimSpace(libraryType), "group") {
		kind = "groups"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  "/" + kind + "/" + url.PathEscape(strings.TrimSpace(libraryID)),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks that the API is reachable and the key can read the library.
func (c *Client) Ping(ctx context.Context) error {
	query := url.Values{"limit": {"1"}, "format": {"keys"}}
	resp, err := c.send(ctx, http.MethodGet, c.prefix+"/items/top", query, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ItemsByTag returns every item carrying all of tags. A tag prefixed with
// "-" excludes items carrying it.
func (c *Client) ItemsByTag(ctx context.Context, tags ...string) ([]models.LibraryItem, error) {
	query := url.Values{}
	for _, tag := range tags {
		query.Add("tag", tag)
	}
	envelopes, err := c.list(ctx, c.prefix+"/items", query)
	if err != nil {
		return nil, err
	}
	items := make([]models.LibraryItem, 0, len(envelopes))
	for _, env := range envelopes {
		items = append(items, env.item())
	}
	return items, nil
}

// Item fetches a single item.
func (c *Client) Item(ctx context.Context, key string) (models.LibraryItem, error) {
	var env itemEnvelope
	if err := c.do(ctx, http.MethodGet, c.itemPath(key), nil, nil, &env); err != nil {
		return models.LibraryItem{}, err
	}
	return env.item(), nil
}

// Children returns the child attachments of an item. Notes and other
// non-attachment children are dropped.
func (c *Client) Children(ctx context.Context, key string) ([]models.Attachment, error) {
	envelopes, err := c.list(ctx, c.itemPath(key)+"/children", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Attachment, 0, len(envelopes))
	for _, env := range envelopes {
		if env.Data.ItemType != "" && env.Data.ItemType != "attachment" {
			continue
		}
		out = append(out, env.attachment())
	}
	return out, nil
}

// DownloadFile streams the stored file of an attachment to w.
func (c *Client) DownloadFile(ctx context.Context, key string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, c.itemPath(key)+"/file", nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

// AddTags adds tags to item, keeping its existing tags. On success item
// carries the new tag list and version.
func (c *Client) AddTags(ctx context.Context, item *models.LibraryItem, tags ...models.Tag) error {
	if item == nil {
		return fmt.Errorf("add tags: nil item")
	}
	next := item.WithTags(tags...)
	if len(next) == len(item.Tags) {
		return nil
	}

	body, err := json.Marshal(tagsPatch{Tags: toTagRefs(next)})
	if err != nil {
		return err
	}
	resp, err := c.sendVersioned(ctx, http.MethodPatch, c.itemPath(item.Key), body, item.Version)
	if err != nil {
		return fmt.Errorf("add tags to %s: %w", item.Key, err)
	}
	resp.Body.Close()

	item.Tags = next
	if v, err := strconv.Atoi(resp.Header.Get("Last-Modified-Version")); err == nil {
		item.Version = v
	}
	return nil
}

// RemoveTag removes tag from every item in items. Items are written in as
// few requests as the API allows; a partial failure is reported as an error
// naming the failed keys.
func (c *Client) RemoveTag(ctx context.Context, items []*models.LibraryItem, tag models.Tag) error {
	updates := make([]tagsUpdate, 0, len(items))
	byKey := make(map[string]*models.LibraryItem, len(items))
	for _, item := range items {
		if item == nil || !item.HasTag(tag) {
			continue
		}
		updates = append(updates, tagsUpdate{Key: item.Key, Version: item.Version, Tags: toTagRefs(item.WithoutTag(tag))})
		byKey[item.Key] = item
	}

	var failed []string
	for start := 0; start < len(updates); start += writeBatchSize {
		end := min(start+writeBatchSize, len(updates))
		batch := updates[start:end]

		var result WriteResult
		if err := c.do(ctx, http.MethodPost, c.prefix+"/items", nil, batch, &result); err != nil {
			return fmt.Errorf("remove tag %q: %w", tag, err)
		}
		for idx, update := range batch {
			slot := strconv.Itoa(idx)
			if f, ok := result.Failed[slot]; ok {
				failed = append(failed, fmt.Sprintf("%s (%d %s)", update.Key, f.Code, f.Message))
				continue
			}
			item := byKey[update.Key]
			item.Tags = item.WithoutTag(tag)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("remove tag %q failed for: %s", tag, strings.Join(failed, ", "))
	}
	return nil
}

// ItemTemplate returns an empty item of the given type for use with
// CreateItems. linkMode applies to attachments only.
func (c *Client) ItemTemplate(ctx context.Context, itemType, linkMode string) (map[string]any, error) {
	query := url.Values{"itemType": {itemType}}
	if linkMode != "" {
		query.Set("linkMode", linkMode)
	}
	var tmpl map[string]any
	if err := c.do(ctx, http.MethodGet, "/items/new", query, nil, &tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// CreateItems writes new items. A non-empty parentKey is set as the parent of
// every item.
func (c *Client) CreateItems(ctx context.Context, parentKey string, items []map[string]any) (WriteResult, error) {
	if parentKey != "" {
		for _, item := range items {
			item["parentItem"] = parentKey
		}
	}
	var result WriteResult
	if err := c.do(ctx, http.MethodPost, c.prefix+"/items", nil, items, &result); err != nil {
		return WriteResult{}, err
	}
	return result, nil
}

// CreateAttachment creates one attachment record under parentKey and returns
// its key.
func (c *Client) CreateAttachment(ctx context.Context, parentKey string, tmpl map[string]any) (string, error) {
	result, err := c.CreateItems(ctx, parentKey, []map[string]any{tmpl})
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	if key := result.Success["0"]; key != "" {
		return key, nil
	}
	if f, ok := result.Failed["0"]; ok {
		return "", &APIError{Status: f.Code, Code: codeForStatus(f.Code), Message: f.Message}
	}
	return "", fmt.Errorf("create attachment: no key returned")
}

// DeleteItem removes the item key. version must be the item's current
// version; a newer version on the server fails with ErrVersionConflict.
func (c *Client) DeleteItem(ctx context.Context, key string, version int) error {
	resp, err := c.sendVersioned(ctx, http.MethodDelete, c.itemPath(key), nil, version)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	resp.Body.Close()
	return nil
}

// UploadAttachment creates an imported-file attachment named filename under
// parentKey and uploads the file at localPath as its content.
func (c *Client) UploadAttachment(ctx context.Context, parentKey, filename, localPath string) (string, error) {
	tmpl, err := c.ItemTemplate(ctx, "attachment", "imported_file")
	if err != nil {
		return "", fmt.Errorf("attachment template: %w", err)
	}
	tmpl["title"] = strings.TrimSuffix(filename, filepath.Ext(filename))
	tmpl["filename"] = filename
	tmpl["contentType"] = models.MediaTypePDF

	key, err := c.CreateAttachment(ctx, parentKey, tmpl)
	if err != nil {
		return "", err
	}
	if err := c.uploadFile(ctx, key, filename, localPath); err != nil {
		return key, fmt.Errorf("upload %s: %w", filename, err)
	}
	return key, nil
}

func (c *Client) uploadFile(ctx context.Context, key, filename, localPath string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	sum, err := codec.MD5File(localPath)
	if err != nil {
		return err
	}

	form := url.Values{
		"md5":      {sum},
		"filename": {filename},
		"filesize": {strconv.Itoa(len(content))},
		"mtime":    {strconv.FormatInt(info.ModTime().UnixMilli(), 10)},
	}
	resp, err := c.sendForm(ctx, c.itemPath(key)+"/file", form)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	var auth uploadAuthorization
	err = json.NewDecoder(resp.Body).Decode(&auth)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if auth.Exists == 1 {
		return nil
	}
	if auth.URL == "" || auth.UploadKey == "" {
		return fmt.Errorf("authorize: incomplete upload authorization")
	}

	payload := make([]byte, 0, len(auth.Prefix)+len(content)+len(auth.Suffix))
	payload = append(payload, auth.Prefix...)
	payload = append(payload, content...)
	payload = append(payload, auth.Suffix...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", auth.ContentType)
	uploadResp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	uploadResp.Body.Close()
	if uploadResp.StatusCode >= 300 {
		return &APIError{Status: uploadResp.StatusCode, Code: codeForStatus(uploadResp.StatusCode), Message: "file upload rejected"}
	}

	resp, err = c.sendForm(ctx, c.itemPath(key)+"/file", url.Values{"upload": {auth.UploadKey}})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	resp.Body.Close()
	return nil
}

// list pages through a multi-object endpoint.
func (c *Client) list(ctx context.Context, path string, query url.Values) ([]itemEnvelope, error) {
	var all []itemEnvelope
	start := 0
	for {
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("start", strconv.Itoa(start))
		resp, err := c.send(ctx, http.MethodGet, path, query, nil, "")
		if err != nil {
			return nil, err
		}
		var page []itemEnvelope
		err = json.NewDecoder(resp.Body).Decode(&page)
		total, totalErr := strconv.Atoi(resp.Header.Get("Total-Results"))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		all = append(all, page...)
		start += len(page)
		if len(page) == 0 || totalErr != nil || start >= total {
			return all, nil
		}
	}
}

func (c *Client) itemPath(key string) string {
	return c.prefix + "/items/" + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	contentType := ""
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, query, payload, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) sendVersioned(ctx context.Context, method, path string, body []byte, version int) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("If-Unmodified-Since-Version", strconv.Itoa(version))
	return c.exec(req)
}

func (c *Client) sendForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	req.Header.Set("If-None-Match", "*")
	return c.exec(req)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}
	return c.exec(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Zotero-API-Version", apiVersion)
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}
	return req, nil
}

// exec runs req and turns error statuses into *APIError. The caller closes
// the body of a successful response.
func (c *Client) exec(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{
		Status:     resp.StatusCode,
		Code:       codeForStatus(resp.StatusCode),
		Message:    msg,
		RetryAfter: resp.Header.Get("Retry-After"),
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
