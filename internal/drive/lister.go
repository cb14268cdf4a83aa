// Package drive enumerates and downloads tenant credential artifacts from the
// Google Drive folder acting as the credential store.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ArtifactRef describes one stored credential artifact with enough information
// to fetch its bytes later.
type ArtifactRef struct {
	ID       string
	Name     string
	MimeType string
}

// Store is the narrow credential-store surface the pipeline consumes.
type Store interface {
	List(ctx context.Context) []ArtifactRef
	Download(ctx context.Context, ref ArtifactRef, dir string) (string, error)
}

// Lister lists and downloads token artifacts from one Drive folder.
type Lister struct {
	svc      *gdrive.Service
	folderID string
}

// New builds a Lister using application default credentials.
func New(ctx context.Context, folderID string, opts ...option.ClientOption) (*Lister, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Lister{svc: svc, folderID: folderID}, nil
}

// List enumerates the artifacts in the folder. Listing failures are logged and
// yield an empty slice: callers treat empty as "no tenants available".
func (l *Lister) List(ctx context.Context) []ArtifactRef {
	resp, err := l.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents", l.folderID)).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		log.WithError(err).WithField("folder", l.folderID).Error("listing credential artifacts failed")
		return nil
	}

	refs := make([]ArtifactRef, 0, len(resp.Files))
	for _, f := range resp.Files {
		refs = append(refs, ArtifactRef{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
	}
	return refs
}

// Download fetches the artifact bytes into dir and returns the local path.
func (l *Lister) Download(ctx context.Context, ref ArtifactRef, dir string) (string, error) {
	resp, err := l.svc.Files.Get(ref.ID).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("download artifact %s: %w", ref.Name, err)
	}
	defer resp.Body.Close()

	path := filepath.Join(dir, filepath.Base(ref.Name))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
