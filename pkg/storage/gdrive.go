package storage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const driveUploadBase = "https://www.googleapis.com/upload/drive/v3/files"

// GoogleDriveConfig holds OAuth credentials for the Drive provider.
type GoogleDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// GoogleDrive implements Provider over Drive's resumable upload protocol:
// one session URI accepts sequential byte-range PUTs, completion is probed
// with a Content-Range status check and verified against file metadata.
type GoogleDrive struct {
	service *drive.Service
	client  *http.Client // authenticated; used for raw resumable session calls
	cfg     GoogleDriveConfig
	logger  *zap.Logger
}

// NewGoogleDrive creates a Drive storage provider from a refresh token.
func NewGoogleDrive(ctx context.Context, cfg GoogleDriveConfig, logger *zap.Logger) (*GoogleDrive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	client := oauth2.NewClient(ctx, ts)
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	logger.Info("google drive storage provider ready", zap.String("folder_id", cfg.FolderID))
	return &GoogleDrive{service: srv, client: client, cfg: cfg, logger: logger}, nil
}

// Kind returns the provider kind.
func (g *GoogleDrive) Kind() string { return KindGoogleDrive }

// BeginUpload creates the file metadata (so the provider file ID exists up
// front), then opens a resumable session for its content.
func (g *GoogleDrive) BeginUpload(ctx context.Context, in BeginUploadInput) (*UploadTarget, error) {
	if err := ValidateUploadInput(in, MaxDriveObjectBytes); err != nil {
		return nil, err
	}
	meta := &drive.File{
		Name:     in.Filename,
		MimeType: in.ContentType,
	}
	if g.cfg.FolderID != "" {
		meta.Parents = []string{g.cfg.FolderID}
	}
	created, err := g.service.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "create file", Err: err}
	}

	url := fmt.Sprintf("%s/%s?uploadType=resumable", driveUploadBase, created.Id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("X-Upload-Content-Type", in.ContentType)
	if in.SizeBytes > 0 {
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(in.SizeBytes, 10))
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "start resumable session", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "start resumable session",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "start resumable session",
			Err: fmt.Errorf("no session URI in response")}
	}
	return &UploadTarget{
		Provider:  KindGoogleDrive,
		FileID:    created.Id,
		UploadID:  session,
		UploadURL: session,
	}, nil
}

// PartUploadURL returns the session URI; Drive takes sequential byte ranges
// on a single endpoint rather than per-part URLs.
func (g *GoogleDrive) PartUploadURL(ctx context.Context, fileID, uploadID string, partNumber int32) (string, error) {
	if uploadID == "" {
		return "", &ValidationError{Field: "upload_id", Reason: "no resumable session"}
	}
	return uploadID, nil
}

// CompleteUpload probes the session with a Content-Range status check, then
// fetches file metadata and verifies the byte count against declaredSize.
// Trusting the metadata fetch alone would miss truncated sessions.
func (g *GoogleDrive) CompleteUpload(ctx context.Context, fileID, uploadID string, declaredSize int64, parts []CompletedPart) (*CompleteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadID, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", declaredSize))
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "session status", Err: err}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// all bytes received
	case 308: // Resume Incomplete
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "session status",
			Err: fmt.Errorf("upload incomplete, received range %q", resp.Header.Get("Range"))}
	default:
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "session status",
			Err: fmt.Errorf("unexpected status %d (session may be expired)", resp.StatusCode)}
	}

	meta, err := g.service.Files.Get(fileID).
		Fields("id, size, md5Checksum, webViewLink, webContentLink").
		Context(ctx).Do()
	if err != nil {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "fetch metadata", Err: err}
	}
	if declaredSize > 0 && meta.Size != declaredSize {
		return nil, &ProviderError{Provider: KindGoogleDrive, Op: "verify size",
			Err: fmt.Errorf("provider reports %d bytes, expected %d", meta.Size, declaredSize)}
	}
	return &CompleteResult{
		Location:  meta.WebViewLink,
		ETag:      meta.Md5Checksum,
		SizeBytes: meta.Size,
	}, nil
}

// DownloadURL returns the provider's content link. Drive controls validity;
// expires is ignored.
func (g *GoogleDrive) DownloadURL(ctx context.Context, fileID string, expires time.Duration) (string, error) {
	meta, err := g.service.Files.Get(fileID).
		Fields("webContentLink, webViewLink").
		Context(ctx).Do()
	if err != nil {
		return "", &ProviderError{Provider: KindGoogleDrive, Op: "fetch metadata", Err: err}
	}
	if meta.WebContentLink != "" {
		return meta.WebContentLink, nil
	}
	return meta.WebViewLink, nil
}
