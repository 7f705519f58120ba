package pds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
)

// MessageCollection is the NSID of the chat message record collection.
const MessageCollection = "com.nodetalk.chat.message"

const listPageLimit = 100

// ErrUnauthorized is returned when the PDS rejects an unauthenticated read.
// Public records are expected to be readable without credentials, so callers
// treat this as non-actionable.
var ErrUnauthorized = errors.New("pds: unauthorized")

type FileAttachment struct {
	FileUrl  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

// RecordValue is the decoded body of a chat message record. Ciphertext and
// nonce are opaque; this layer never decrypts.
type RecordValue struct {
	Type       string           `json:"$type,omitempty"`
	RoomId     string           `json:"roomId"`
	Ciphertext string           `json:"ciphertext"`
	Nonce      string           `json:"nonce"`
	CreatedAt  string           `json:"createdAt"`
	FileUrl    string           `json:"fileUrl,omitempty"`
	FileName   string           `json:"fileName,omitempty"`
	MimeType   string           `json:"mimeType,omitempty"`
	Files      []FileAttachment `json:"files,omitempty"`
}

type Record struct {
	Uri   string      `json:"uri"`
	Cid   string      `json:"cid,omitempty"`
	Value RecordValue `json:"value"`
}

type listRecordsResponse struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

// RecordLister reads records from a remote PDS repository.
type RecordLister interface {
	ListRecords(ctx context.Context, endpoint, did, collection string) ([]Record, error)
	GetRecord(ctx context.Context, endpoint, did, collection, rkey string) (*Record, error)
}

type Client struct {
	http *http.Client
	log  *log.Logger
}

func NewClient(logger *log.Logger) *Client {
	return &Client{
		http: &http.Client{},
		log:  logger,
	}
}

// ListRecords fetches every record of a collection from the repository,
// following the listRecords cursor until the PDS reports no more pages.
func (c *Client) ListRecords(ctx context.Context, endpoint, did, collection string) ([]Record, error) {
	var records []Record
	cursor := ""

	for {
		q := url.Values{}
		q.Set("repo", did)
		q.Set("collection", collection)
		q.Set("limit", strconv.Itoa(listPageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page listRecordsResponse
		if err := c.get(ctx, endpoint, "com.atproto.repo.listRecords", q, &page); err != nil {
			return nil, err
		}

		records = append(records, page.Records...)

		if page.Cursor == "" || len(page.Records) == 0 {
			break
		}
		cursor = page.Cursor
	}

	return records, nil
}

// GetRecord reads a single record by collection and record key. Kept for the
// legacy fallback path; steady-state ingestion never needs it because events
// carry the ciphertext inline.
func (c *Client) GetRecord(ctx context.Context, endpoint, did, collection, rkey string) (*Record, error) {
	q := url.Values{}
	q.Set("repo", did)
	q.Set("collection", collection)
	q.Set("rkey", rkey)

	var rec Record
	if err := c.get(ctx, endpoint, "com.atproto.repo.getRecord", q, &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (c *Client) get(ctx context.Context, endpoint, method string, query url.Values, out any) error {
	u := fmt.Sprintf("%s/xrpc/%s?%s", endpoint, method, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}

	return nil
}
