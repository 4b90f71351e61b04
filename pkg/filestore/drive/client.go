// Package drive implements filestore.Store against the Drive v3 REST API,
// authenticating with a service account. All calls carry the shared-drive
// parameters so files on the team drive are visible to the credential.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/macrodata/statpipe/pkg/filestore"
)

const defaultAPIBase = "https://www.googleapis.com"

// listFields is what every file query asks for: enough to build a
// filestore.FileRef without a second round trip.
const listFields = "files(id,name,webViewLink,size,modifiedTime)"

// Client is an authenticated Drive API client implementing filestore.Store.
type Client struct {
	baseURL string
	driveID string
	tokens  TokenSource
	http    *http.Client
}

// New creates a Client from a service-account key file. driveID is the
// shared drive the folders live on; baseURL overrides the API root for
// tests (empty selects the production API).
func New(credentialsFile, driveID, baseURL string) (*Client, error) {
	account, err := LoadServiceAccount(credentialsFile)
	if err != nil {
		return nil, err
	}
	tokens := NewServiceAccountTokenSource(account, nil)
	return NewWithTokenSource(tokens, driveID, baseURL), nil
}

// NewWithTokenSource creates a Client with an externally supplied token
// source.
func NewWithTokenSource(tokens TokenSource, driveID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		driveID: driveID,
		tokens:  tokens,
		http: &http.Client{
			Timeout: 2 * time.Minute, // generous for workbook uploads
		},
	}
}

// fileResource is the wire shape of a Drive file. Size is a string in the
// JSON API.
type fileResource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	WebViewLink  string `json:"webViewLink"`
	Size         string `json:"size"`
	ModifiedTime string `json:"modifiedTime"`
}

func (f *fileResource) toRef(folderID string) *filestore.FileRef {
	ref := &filestore.FileRef{
		ID:      f.ID,
		Name:    f.Name,
		Folder:  folderID,
		WebLink: f.WebViewLink,
	}
	if f.Size != "" {
		ref.Size, _ = strconv.ParseInt(f.Size, 10, 64)
	}
	if f.ModifiedTime != "" {
		ref.Modified, _ = time.Parse(time.RFC3339, f.ModifiedTime)
	}
	return ref
}

// FindInFolder returns the first file named name in the folder, or nil if
// the folder holds no such file.
func (c *Client) FindInFolder(ctx context.Context, folderID, name string) (*filestore.FileRef, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(folderID))

	params := c.sharedDriveParams()
	params.Set("q", query)
	params.Set("spaces", "drive")
	params.Set("fields", listFields)

	var out struct {
		Files []fileResource `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.url("drive/v3/files")+"?"+params.Encode(), nil, "", &out); err != nil {
		return nil, fmt.Errorf("find file %q in folder %q: %w", name, folderID, err)
	}
	if len(out.Files) == 0 {
		return nil, nil
	}
	return out.Files[0].toRef(folderID), nil
}

// Download returns the complete content of the file.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	params := url.Values{}
	params.Set("alt", "media")
	params.Set("supportsAllDrives", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("drive/v3/files", fileID)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("download %q: %w", fileID, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", fileID, err)
	}
	return data, nil
}

// Create uploads content as a new file in the folder using a multipart
// request: a JSON metadata part followed by the media part.
func (c *Client) Create(ctx context.Context, folderID, name, contentType string, content []byte) (*filestore.FileRef, error) {
	metadata := map[string]any{
		"name":    name,
		"parents": []string{folderID},
	}

	body, boundary, err := multipartUpload(metadata, contentType, content)
	if err != nil {
		return nil, fmt.Errorf("create file %q: %w", name, err)
	}

	params := url.Values{}
	params.Set("uploadType", "multipart")
	params.Set("supportsAllDrives", "true")
	params.Set("fields", "id,name,webViewLink,size,modifiedTime")

	var out fileResource
	uploadURL := c.url("upload/drive/v3/files") + "?" + params.Encode()
	if err := c.doJSON(ctx, http.MethodPost, uploadURL, body, "multipart/related; boundary="+boundary, &out); err != nil {
		return nil, fmt.Errorf("create file %q in folder %q: %w", name, folderID, err)
	}
	return out.toRef(folderID), nil
}

// UpdateContent replaces the content of an existing file in place.
func (c *Client) UpdateContent(ctx context.Context, fileID, contentType string, content []byte) (*filestore.FileRef, error) {
	params := url.Values{}
	params.Set("uploadType", "media")
	params.Set("supportsAllDrives", "true")
	params.Set("fields", "id,name,webViewLink,size,modifiedTime")

	var out fileResource
	uploadURL := c.url("upload/drive/v3/files", fileID) + "?" + params.Encode()
	if err := c.doJSON(ctx, http.MethodPatch, uploadURL, bytes.NewReader(content), contentType, &out); err != nil {
		return nil, fmt.Errorf("update file %q: %w", fileID, err)
	}
	return out.toRef(""), nil
}

// Move renames the file and reparents it in one request so observers never
// see a half-moved state.
func (c *Client) Move(ctx context.Context, fileID, newName, fromFolderID, toFolderID string) (*filestore.FileRef, error) {
	params := url.Values{}
	params.Set("addParents", toFolderID)
	params.Set("removeParents", fromFolderID)
	params.Set("supportsAllDrives", "true")
	params.Set("fields", "id,name,webViewLink,size,modifiedTime")

	body, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return nil, err
	}

	var out fileResource
	moveURL := c.url("drive/v3/files", fileID) + "?" + params.Encode()
	if err := c.doJSON(ctx, http.MethodPatch, moveURL, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, fmt.Errorf("move file %q to folder %q: %w", fileID, toFolderID, err)
	}
	return out.toRef(toFolderID), nil
}

// Delete removes the file.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	params := url.Values{}
	params.Set("supportsAllDrives", "true")

	if err := c.doJSON(ctx, http.MethodDelete, c.url("drive/v3/files", fileID)+"?"+params.Encode(), nil, "", nil); err != nil {
		return fmt.Errorf("delete file %q: %w", fileID, err)
	}
	return nil
}

// List returns up to limit files in the folder, oldest first.
func (c *Client) List(ctx context.Context, folderID string, limit int) ([]filestore.FileRef, error) {
	if limit <= 0 {
		limit = 100
	}

	params := c.sharedDriveParams()
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID)))
	params.Set("orderBy", "modifiedTime")
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("fields", listFields)

	var out struct {
		Files []fileResource `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.url("drive/v3/files")+"?"+params.Encode(), nil, "", &out); err != nil {
		return nil, fmt.Errorf("list folder %q: %w", folderID, err)
	}

	refs := make([]filestore.FileRef, 0, len(out.Files))
	for _, f := range out.Files {
		refs = append(refs, *f.toRef(folderID))
	}
	return refs, nil
}

// sharedDriveParams returns the query parameters every search-style call
// needs to see files on the shared drive.
func (c *Client) sharedDriveParams() url.Values {
	params := url.Values{}
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	params.Set("corpora", "drive")
	params.Set("driveId", c.driveID)
	return params
}

// url builds an API URL from path segments.
func (c *Client) url(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// do executes the request with a bearer token from the token source.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("drive: failed to obtain token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(req)
}

// doJSON sends a request and decodes the JSON response into out. A nil out
// discards the body after the status check.
func (c *Client) doJSON(ctx context.Context, method, requestURL string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// checkStatus maps non-2xx responses onto the filestore sentinel errors.
func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return filestore.ErrUnauthorized
	case http.StatusForbidden:
		return filestore.ErrForbidden
	case http.StatusNotFound:
		return filestore.ErrNotFound
	case http.StatusConflict:
		return filestore.ErrConflict
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drive API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// escapeQuery escapes a value for embedding in a Drive search query.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var _ filestore.Store = (*Client)(nil)

// multipartUpload assembles a multipart/related body: JSON metadata part
// then the media part. Returns the body and the boundary for the
// Content-Type header.
func multipartUpload(metadata map[string]any, contentType string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, "", err
	}

	mediaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {contentType},
	})
	if err != nil {
		return nil, "", err
	}
	if _, err := mediaPart.Write(content); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.Boundary(), nil
}
