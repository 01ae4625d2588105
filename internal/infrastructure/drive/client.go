// Package drive implements C2: folder-URL parsing, recursive image listing,
// byte download with backoff, and thumbnail URL resolution against Google
// Drive. Grounded on the teacher's infrastructure/googledrive/drive_client.go,
// generalized to the fixed retry/backoff/jitter discipline spec.md §4.2
// requires and gated by the drive rate limiter (C1) on every outbound call.
package drive

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/config"
	"driveingest/internal/pkg/logger"
	"driveingest/internal/pkg/thumbcache"
	"driveingest/internal/ratelimit"
)

// Credential is the optional per-request user token threaded through the
// Ingest → Folder Worker → Image Worker → Drive Adapter chain (spec §9).
// Never carried as ambient process state.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Image is one listed drive file admitted by the supported MIME set.
type Image struct {
	DriveFileID     string
	Name            string
	MimeType        string
	SizeBytes       int64
	ThumbnailURL    string
	ViewURL         string
	DriveFolderID   string
	DriveFolderPath string
	ModifiedTime    time.Time
	VersionToken    string
}

// ListResult is the outcome of a recursive folder listing.
type ListResult struct {
	FolderName string
	Images     []Image
}

var folderURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://drive\.google\.com/drive/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^https://drive\.google\.com/drive/u/\d+/folders/([a-zA-Z0-9_-]+)`),
}

var openIDPattern = regexp.MustCompile(`^https://drive\.google\.com/open\?.*\bid=([a-zA-Z0-9_-]+)`)

const folderMimeType = "application/vnd.google-apps.folder"

// Adapter implements C2 against the real Google Drive API.
type Adapter struct {
	oauthConfig      *oauth2.Config
	serviceAccountOpt option.ClientOption // nil if no service key configured
	limiter          *ratelimit.Limiter
	httpClient       *http.Client
	thumbCache       *thumbcache.Cache
}

func NewAdapter(cfg config.DriveConfig, limiter *ratelimit.Limiter, cache *thumbcache.Cache) (*Adapter, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			drive.DriveReadonlyScope,
			drive.DriveMetadataReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}

	a := &Adapter{
		oauthConfig: oauthConfig,
		limiter:     limiter,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		thumbCache:  cache,
	}

	if cfg.ServiceKeyPath != "" {
		a.serviceAccountOpt = option.WithCredentialsFile(cfg.ServiceKeyPath)
	}

	return a, nil
}

// ParseFolderURL accepts /drive/folders/ID, /drive/u/N/folders/ID and
// ?id=ID; anything else is InvalidInput.
func ParseFolderURL(rawURL string) (string, error) {
	for _, re := range folderURLPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	if m := openIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", apperr.InvalidInputf("unrecognized drive folder URL: %s", rawURL)
}

func (a *Adapter) service(ctx context.Context, cred *Credential) (*drive.Service, error) {
	if cred != nil {
		token := &oauth2.Token{
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       cred.Expiry,
		}
		client := a.oauthConfig.Client(ctx, token)
		return drive.NewService(ctx, option.WithHTTPClient(client))
	}
	if a.serviceAccountOpt != nil {
		return drive.NewService(ctx, a.serviceAccountOpt)
	}
	return drive.NewService(ctx)
}

// ListImagesRecursive walks the folder tree, paginating every level, and
// admits only supported image MIME types. Returns PermissionDenied on
// 403/404 with a message that distinguishes "no credential supplied" from
// "credential present but lacks access".
func (a *Adapter) ListImagesRecursive(ctx context.Context, driveFolderID string, cred *Credential) (*ListResult, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	srv, err := a.service(ctx, cred)
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "failed to build drive service", err)
	}

	root, err := srv.Files.Get(driveFolderID).Fields("id, name").SupportsAllDrives(true).Do()
	if err != nil {
		return nil, a.translateListError(err, cred)
	}

	var images []Image
	if err := a.walkFolder(ctx, srv, driveFolderID, root.Name, &images, cred); err != nil {
		return nil, err
	}

	return &ListResult{FolderName: root.Name, Images: images}, nil
}

func (a *Adapter) walkFolder(ctx context.Context, srv *drive.Service, folderID, folderPath string, out *[]Image, cred *Credential) error {
	pageToken := ""
	for {
		if err := a.limiter.Acquire(ctx); err != nil {
			return err
		}

		call := srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
			Fields("nextPageToken, files(id, name, mimeType, size, thumbnailLink, webViewLink, parents, modifiedTime, md5Checksum)").
			PageSize(100).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return a.translateListError(err, cred)
		}

		for _, f := range result.Files {
			if f.MimeType == folderMimeType {
				continue
			}
			if !supportedMime(f.MimeType) {
				continue
			}
			modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			version := f.Md5Checksum
			if version == "" {
				version = f.ModifiedTime
			}
			*out = append(*out, Image{
				DriveFileID:     f.Id,
				Name:            f.Name,
				MimeType:        f.MimeType,
				SizeBytes:       f.Size,
				ThumbnailURL:    f.ThumbnailLink,
				ViewURL:         f.WebViewLink,
				DriveFolderID:   folderID,
				DriveFolderPath: folderPath,
				ModifiedTime:    modified,
				VersionToken:    version,
			})
		}

		pageToken = result.NextPageToken
		if pageToken == "" {
			break
		}
	}

	subfolders, err := a.listSubfolders(ctx, srv, folderID)
	if err != nil {
		return err
	}
	for _, sub := range subfolders {
		if err := a.walkFolder(ctx, srv, sub.id, folderPath+"/"+sub.name, out, cred); err != nil {
			return err
		}
	}
	return nil
}

type driveFolderRef struct {
	id   string
	name string
}

func (a *Adapter) listSubfolders(ctx context.Context, srv *drive.Service, parentID string) ([]driveFolderRef, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var out []driveFolderRef
	pageToken := ""
	for {
		call := srv.Files.List().
			Q(fmt.Sprintf("mimeType='%s' and trashed=false and '%s' in parents", folderMimeType, parentID)).
			Fields("nextPageToken, files(id, name)").
			PageSize(100).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		result, err := call.Do()
		if err != nil {
			return nil, apperr.New(apperr.TransientUpstream, "failed to list subfolders", err)
		}
		for _, f := range result.Files {
			out = append(out, driveFolderRef{id: f.Id, name: f.Name})
		}
		pageToken = result.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func (a *Adapter) translateListError(err error, cred *Credential) error {
	if isNotFoundOrForbidden(err) {
		if cred != nil {
			return apperr.New(apperr.PermissionDenied, "credential lacks access to this drive folder", err)
		}
		return apperr.New(apperr.PermissionDenied, "folder is private and no credential was supplied", err)
	}
	return apperr.New(apperr.TransientUpstream, "drive listing failed", err)
}

func isNotFoundOrForbidden(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "403") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "notFound") || strings.Contains(msg, "forbidden")
}

func supportedMime(mime string) bool {
	switch mime {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/svg+xml":
		return true
	default:
		return false
	}
}

// DownloadBytes makes three attempts with exponential backoff (2s, 4s, 8s)
// plus jitter ≤1s, a 30s per-attempt deadline, and on exhaustion one final
// attempt against an alternative authenticated endpoint.
func (a *Adapter) DownloadBytes(ctx context.Context, driveFileID string, cred *Credential) ([]byte, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	srv, err := a.service(ctx, cred)
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "failed to build drive service", err)
	}

	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	var lastErr error
	for attempt, backoff := range backoffs {
		data, err := a.attemptDownload(ctx, srv, driveFileID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		logger.DriveError("download_attempt_failed", "download attempt failed", err, map[string]interface{}{
			"attempt":  attempt + 1,
			"file_id":  driveFileID,
		})

		jitter := time.Duration(rand.Int63n(int64(time.Second)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	data, err := a.attemptAlternateDownload(ctx, srv, driveFileID)
	if err == nil {
		return data, nil
	}

	return nil, apperr.New(apperr.TransientUpstream, "download exhausted all attempts", fmt.Errorf("%v; final: %w", lastErr, err))
}

func (a *Adapter) attemptDownload(ctx context.Context, srv *drive.Service, fileID string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := srv.Files.Get(fileID).Context(attemptCtx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// attemptAlternateDownload falls back to the file's webContentLink, fetched
// with a plain authenticated HTTP GET instead of the Drive API's media
// endpoint.
func (a *Adapter) attemptAlternateDownload(ctx context.Context, srv *drive.Service, fileID string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	file, err := srv.Files.Get(fileID).Context(attemptCtx).Fields("webContentLink").Do()
	if err != nil || file.WebContentLink == "" {
		return nil, fmt.Errorf("no alternate download endpoint available: %v", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, file.WebContentLink, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alternate download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FreshThumbnailURL clamps size to [32,1600], consults the bounded-TTL
// thumbnail cache before calling the drive API, and refreshes on a cache
// miss or stale entry.
func (a *Adapter) FreshThumbnailURL(ctx context.Context, driveFileID string, size int, cred *Credential) (string, error) {
	if size < 32 {
		size = 32
	}
	if size > 1600 {
		size = 1600
	}

	cacheKey := fmt.Sprintf("%s:%d", driveFileID, size)
	if url, ok := a.thumbCache.Get(cacheKey); ok {
		return url, nil
	}

	if err := a.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	srv, err := a.service(ctx, cred)
	if err != nil {
		return "", apperr.New(apperr.TransientUpstream, "failed to build drive service", err)
	}

	file, err := srv.Files.Get(driveFileID).Fields("id, thumbnailLink").Do()
	if err != nil {
		return "", apperr.New(apperr.NotFound, "thumbnail not available", err)
	}
	if file.ThumbnailLink == "" {
		return "", apperr.New(apperr.NotFound, "drive reports no thumbnail for this file", nil)
	}

	url := strings.Replace(file.ThumbnailLink, "=s220", fmt.Sprintf("=s%d", size), 1)
	a.thumbCache.Set(cacheKey, url)
	return url, nil
}

// FetchThumbnail resolves a fresh thumbnail URL and downloads it, for the
// Thumbnail endpoint of spec §6's Public API surface.
func (a *Adapter) FetchThumbnail(ctx context.Context, driveFileID string, size int, cred *Credential) (data []byte, contentType string, err error) {
	url, err := a.FreshThumbnailURL(ctx, driveFileID, size, cred)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperr.New(apperr.NotFound, "failed to build thumbnail request", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", apperr.New(apperr.NotFound, "thumbnail fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.New(apperr.NotFound, fmt.Sprintf("thumbnail fetch returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.New(apperr.NotFound, "failed to read thumbnail body", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
