// Package api is the HTTP client for the vault server. It mirrors the REST
// surface one method per endpoint and maps response statuses back onto the
// shared error sentinels so callers can branch with errors.Is.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/sethvargo/go-retry"
)

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// --- wire types ---

type CiphertextEntry struct {
	KeyID         string `json:"keyId"`
	EncryptedData string `json:"encryptedData"`
}

type Key struct {
	KeyID     string    `json:"keyId"`
	Name      string    `json:"name"`
	PublicKey string    `json:"publicKey"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type Secret struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	LatestVersion int64  `json:"latestVersion"`
}

type Recipient struct {
	Username string `json:"username"`
	Keys     []Key  `json:"keys"`
}

type Permission struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Status      string     `json:"status"`
	InvitedBy   int64      `json:"invitedBy"`
	InvitedAt   time.Time  `json:"invitedAt"`
	RespondedAt *time.Time `json:"respondedAt"`
}

type Operation struct {
	ID           int64          `json:"id"`
	Type         string         `json:"type"`
	UserID       int64          `json:"userId"`
	TargetUserID *int64         `json:"targetUserId"`
	Details      map[string]any `json:"details"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type RegisterResult struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	KeyID    string `json:"keyId"`
	Token    string `json:"token"`
}

// --- transport ---

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError reverses the server's sentinel-to-status mapping. 409 comes
// back as ErrVersionConflict so push retries can match on it; the server's
// other 409 causes (duplicate invite, last administrator) also abort the
// retry loop because the message is preserved.
func statusError(resp *http.Response) error {
	var er struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&er)
	if er.Error == "" {
		er.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrValidation, er.Error)
	case http.StatusUnauthorized:
		return common.ErrUnauthenticated
	case http.StatusForbidden:
		return common.ErrPermissionDenied
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrVersionConflict, er.Error)
	default:
		return fmt.Errorf("%w: %s", common.ErrInternal, er.Error)
	}
}

// --- users and keys ---

func (c *Client) RegisterUser(ctx context.Context, username, publicKeyPEM string) (*RegisterResult, error) {
	var out RegisterResult
	err := c.do(ctx, http.MethodPost, "/api/users", map[string]string{
		"username":  username,
		"publicKey": publicKeyPEM,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserKeys(ctx context.Context, username string) ([]Key, error) {
	var out struct {
		Keys []Key `json:"keys"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/"+username+"/keys", nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (c *Client) RegisterKey(ctx context.Context, publicKeyPEM, name string) (*Key, error) {
	var out Key
	err := c.do(ctx, http.MethodPost, "/api/keys", map[string]string{
		"publicKey": publicKeyPEM,
		"name":      name,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokeKey(ctx context.Context, keyID string) error {
	return c.do(ctx, http.MethodDelete, "/api/keys/"+keyID, nil, nil)
}

// --- secrets ---

func (c *Client) ListSecrets(ctx context.Context) ([]Secret, error) {
	var out []Secret
	if err := c.do(ctx, http.MethodGet, "/api/secrets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSecret(ctx context.Context, name, description string, metadata map[string]string, entries []CiphertextEntry) (*Secret, error) {
	var out Secret
	err := c.do(ctx, http.MethodPost, "/api/secrets", map[string]any{
		"name":        name,
		"description": description,
		"metadata":    metadata,
		"entries":     entries,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSecret(ctx context.Context, uid string) (*Secret, error) {
	var out Secret
	if err := c.do(ctx, http.MethodGet, "/api/secrets/"+uid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushVersion submits a new version and returns its assigned number.
// Concurrent writers race for the next version number, so a conflict is
// retried with exponential backoff before giving up.
func (c *Client) PushVersion(ctx context.Context, uid string, metadata map[string]string, entries []CiphertextEntry) (int64, error) {
	var out struct {
		Version int64 `json:"version"`
	}

	backoff := retry.WithMaxRetries(4, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPut, "/api/secrets/"+uid, map[string]any{
			"metadata": metadata,
			"entries":  entries,
		}, &out)
		if errors.Is(err, common.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (c *Client) DeleteSecret(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodDelete, "/api/secrets/"+uid, nil, nil)
}

func (c *Client) RestoreSecret(ctx context.Context, uid string) (*Secret, error) {
	var out Secret
	if err := c.do(ctx, http.MethodPost, "/api/secrets/"+uid+"/restore", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EncryptedData fetches the caller's ciphertext. version 0 means latest;
// the resolved version is returned alongside the data.
func (c *Client) EncryptedData(ctx context.Context, uid string, version int64) (string, int64, error) {
	path := "/api/secrets/" + uid + "/encrypted-data"
	if version > 0 {
		path += "?version=" + strconv.FormatInt(version, 10)
	}

	var out struct {
		EncryptedData string `json:"encryptedData"`
		Version       int64  `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", 0, err
	}
	return out.EncryptedData, out.Version, nil
}

func (c *Client) RecipientKeys(ctx context.Context, uid string) ([]Recipient, error) {
	var out struct {
		Recipients []Recipient `json:"recipients"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/secrets/"+uid+"/user-keys", nil, &out); err != nil {
		return nil, err
	}
	return out.Recipients, nil
}

func (c *Client) Reencrypt(ctx context.Context, uid, username string, version int64, entries []CiphertextEntry) (int, error) {
	var out struct {
		Stored int `json:"stored"`
	}
	err := c.do(ctx, http.MethodPost, "/api/secrets/"+uid+"/reencrypt", map[string]any{
		"username": username,
		"version":  version,
		"entries":  entries,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Stored, nil
}

// --- permissions ---

func (c *Client) Invite(ctx context.Context, uid, username string) (*Permission, error) {
	var out Permission
	err := c.do(ctx, http.MethodPost, "/api/secrets/"+uid+"/permissions", map[string]string{
		"username": username,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Permissions(ctx context.Context, uid string) ([]Permission, error) {
	var out []Permission
	if err := c.do(ctx, http.MethodGet, "/api/secrets/"+uid+"/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Approve(ctx context.Context, permissionID int64) (*Permission, error) {
	return c.respond(ctx, permissionID, "approve")
}

func (c *Client) Reject(ctx context.Context, permissionID int64) (*Permission, error) {
	return c.respond(ctx, permissionID, "reject")
}

func (c *Client) respond(ctx context.Context, permissionID int64, action string) (*Permission, error) {
	var out Permission
	path := fmt.Sprintf("/api/permissions/%d/%s", permissionID, action)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokePermission(ctx context.Context, permissionID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/permissions/%d", permissionID), nil, nil)
}

// --- audit ---

func (c *Client) Operations(ctx context.Context, uid string) ([]Operation, error) {
	var out []Operation
	if err := c.do(ctx, http.MethodGet, "/api/secrets/"+uid+"/operations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
