package provider

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

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

// HTTPClient talks to the provider's REST gateway.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// wireMessage is the provider's message representation.
type wireMessage struct {
	ID        string   `json:"id"`
	Folder    string   `json:"folder"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Preview   string   `json:"preview"`
	Timestamp string   `json:"timestamp"`
	Read      bool     `json:"read"`
	Important bool     `json:"important"`
	Flagged   bool     `json:"flagged"`
}

func (w *wireMessage) toModel(cred *model.Credential) *model.Message {
	m := &model.Message{
		ID:        w.ID,
		OwnerID:   cred.OwnerID,
		Mailbox:   cred.Mailbox,
		Folder:    w.Folder,
		From:      w.From,
		To:        w.To,
		Cc:        w.Cc,
		Bcc:       w.Bcc,
		Subject:   w.Subject,
		Body:      w.Body,
		Preview:   w.Preview,
		Read:      w.Read,
		Important: w.Important,
		Flagged:   w.Flagged,
	}
	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		m.Timestamp = ts
	}
	return m
}

func (c *HTTPClient) ListFolders(ctx context.Context, cred *model.Credential) ([]model.Folder, error) {
	var resp struct {
		Folders []model.Folder `json:"folders"`
	}
	if err := c.do(ctx, cred, http.MethodGet, "/folders", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, cred *model.Credential, folderID string, pageSize int, continuation string) (*Page, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize))
	if continuation != "" {
		query.Set("continuation", continuation)
	}

	var resp struct {
		Messages     []wireMessage `json:"messages"`
		Continuation string        `json:"continuation"`
	}
	path := fmt.Sprintf("/folders/%s/messages", url.PathEscape(folderID))
	if err := c.do(ctx, cred, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	page := &Page{Continuation: resp.Continuation}
	for i := range resp.Messages {
		page.Messages = append(page.Messages, resp.Messages[i].toModel(cred))
	}
	return page, nil
}

func (c *HTTPClient) GetMessage(ctx context.Context, cred *model.Credential, messageID string) (*model.Message, error) {
	var resp wireMessage
	path := fmt.Sprintf("/messages/%s", url.PathEscape(messageID))
	if err := c.do(ctx, cred, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(cred), nil
}

func (c *HTTPClient) GetAttachment(ctx context.Context, cred *model.Credential, messageID, attachmentID string) (*Attachment, error) {
	path := fmt.Sprintf("%s/messages/%s/attachments/%s",
		c.baseURL, url.PathEscape(messageID), url.PathEscape(attachmentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteFetchFailed, "attachment fetch failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteFetchFailed, "attachment read failed", err)
	}

	name := resp.Header.Get("X-Attachment-Name")
	if name == "" {
		name = attachmentID
	}
	return &Attachment{
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *HTTPClient) Send(ctx context.Context, cred *model.Credential, msg Outgoing) error {
	return c.do(ctx, cred, http.MethodPost, "/messages/send", nil, msg, nil)
}

func (c *HTTPClient) Reply(ctx context.Context, cred *model.Credential, messageID, body string, replyAll bool) error {
	action := "reply"
	if replyAll {
		action = "reply-all"
	}
	path := fmt.Sprintf("/messages/%s/%s", url.PathEscape(messageID), action)
	payload := map[string]string{"body": body}
	return c.do(ctx, cred, http.MethodPost, path, nil, payload, nil)
}

func (c *HTTPClient) MarkRead(ctx context.Context, cred *model.Credential, messageID string, read bool) error {
	path := fmt.Sprintf("/messages/%s/read", url.PathEscape(messageID))
	payload := map[string]bool{"read": read}
	return c.do(ctx, cred, http.MethodPost, path, nil, payload, nil)
}

func (c *HTTPClient) MarkImportant(ctx context.Context, cred *model.Credential, messageID string, important bool) error {
	path := fmt.Sprintf("/messages/%s/important", url.PathEscape(messageID))
	payload := map[string]bool{"important": important}
	return c.do(ctx, cred, http.MethodPost, path, nil, payload, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, cred *model.Credential, messageID string) error {
	path := fmt.Sprintf("/messages/%s", url.PathEscape(messageID))
	return c.do(ctx, cred, http.MethodDelete, path, nil, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, cred *model.Credential, method, path string, query url.Values, payload, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindRemoteFetchFailed, "provider call failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindRemoteFetchFailed, "provider response decode failed", err)
		}
	}
	return nil
}

func (c *HTTPClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindCredentialMissing, "provider rejected token")
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, "provider resource not found")
	case resp.StatusCode >= 400:
		return apperr.Newf(apperr.KindRemoteFetchFailed, "provider returned %d", resp.StatusCode)
	}
	return nil
}
