package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

// ReleaseAPI reads releases and streams their assets
type ReleaseAPI interface {
	ListReleases(ctx context.Context, repo models.Repository) ([]models.GHRelease, error)
	ListReleaseAssets(ctx context.Context, repo models.Repository, releaseID int64) ([]models.GHAsset, error)
	DownloadAsset(ctx context.Context, repo models.Repository, assetID int64, w io.Writer) (int64, error)
}

// Download describes a retrieved artifact
type Download struct {
	Path    string
	Bytes   int64
	Release string
	Asset   string
}

type Retriever struct {
	api    ReleaseAPI
	logger *slog.Logger
}

func NewRetriever(api ReleaseAPI, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{api: api, logger: logger}
}

// SelectAsset returns the first asset, in listing order, whose name ends with ext
func SelectAsset(assets []models.GHAsset, ext string) (*models.GHAsset, bool) {
	for i := range assets {
		if strings.HasSuffix(assets[i].Name, ext) {
			return &assets[i], true
		}
	}
	return nil, false
}

// Retrieve downloads the artifact from the newest release to outDir/artifactName
func (r *Retriever) Retrieve(ctx context.Context, repo models.Repository, artifactName, outDir string) (*Download, error) {
	r.logger.Info("fetching the latest release", "repo", repo.FullName())

	releases, err := r.api.ListReleases(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	if len(releases) == 0 {
		return nil, ErrNoReleases
	}
	latest := releases[0]

	assets, err := r.api.ListReleaseAssets(ctx, repo, latest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets of release %s: %w", latest.TagName, err)
	}

	ext := filepath.Ext(artifactName)
	asset, ok := SelectAsset(assets, ext)
	if !ok {
		return nil, fmt.Errorf("%w: no *%s asset in release %s", ErrArtifactNotFound, ext, latest.TagName)
	}
	r.logger.Info("found artifact", "release", latest.TagName, "asset", asset.Name, "url", asset.DownloadURL)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", ErrDownload, outDir, err)
	}

	dest := filepath.Join(outDir, artifactName)
	n, err := r.download(ctx, repo, asset.ID, dest)
	if err != nil {
		return nil, err
	}

	r.logger.Info("artifact saved", "path", dest, "bytes", n)
	return &Download{Path: dest, Bytes: n, Release: latest.TagName, Asset: asset.Name}, nil
}

// download writes to dest.part and renames on success so dest never holds a partial file
func (r *Retriever) download(ctx context.Context, repo models.Repository, assetID int64, dest string) (int64, error) {
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	n, err := r.api.DownloadAsset(ctx, repo, assetID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return n, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return n, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return n, nil
}
