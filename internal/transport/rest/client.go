package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/freelago/chatkit/internal/domain"
)

const defaultTimeout = 15 * time.Second

// ChatListItem is one row of the conversation list. The ID is the latest
// message's ID; ReceiverID identifies the other participant.
type ChatListItem struct {
	ID             string `json:"id"`
	ReceiverID     string `json:"receiverId"`
	UserName       string `json:"userName"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Client talks to the marketplace REST backend. History fetches are
// single-shot: a failed load is surfaced once and never retried
// automatically.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: trimSlash(baseURL),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// History fetches the persisted messages for the conversation between the
// viewer and peerID, oldest first. The backend takes positional
// (userID, freelancerID) arguments regardless of who is viewing, so the
// roles are resolved from the viewer's kind.
func (c *Client) History(ctx context.Context, self domain.Party, peerID string) ([]domain.RawMessage, error) {
	userID, freelaID := self.ID, peerID
	if self.Kind == domain.PartyKindFreelancer {
		userID, freelaID = peerID, self.ID
	}

	endpoint := fmt.Sprintf("%s/chat/%s/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(freelaID))
	var out []domain.RawMessage
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("history fetch: %w", err)
	}
	return out, nil
}

// ChatList fetches the viewer's open conversations.
func (c *Client) ChatList(ctx context.Context, self domain.Party) ([]ChatListItem, error) {
	q := url.Values{}
	q.Set("userId", self.ID)
	q.Set("listForUser", strconv.FormatBool(self.Kind == domain.PartyKindUser))

	endpoint := fmt.Sprintf("%s/chat/list?%s", c.baseURL, q.Encode())
	var out []ChatListItem
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("chat list fetch: %w", err)
	}
	return out, nil
}

// RequestService submits a pending service request between a user and a
// freelancer.
func (c *Client) RequestService(ctx context.Context, userID, freelancerID string) error {
	body, err := json.Marshal(map[string]string{
		"user_id":       userID,
		"freelancer_id": freelancerID,
		"status":        "PENDING",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("service request: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("service request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func drain(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
