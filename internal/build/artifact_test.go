package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

func TestSelectAsset(t *testing.T) {
	assets := []models.GHAsset{
		{ID: 1, Name: "checksums.txt"},
		{ID: 2, Name: "Runner.ipa"},
		{ID: 3, Name: "FlutterIpaExport.ipa"},
		{ID: 4, Name: "app.ipa.sig"},
	}

	got, ok := SelectAsset(assets, ".ipa")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	_, ok = SelectAsset(assets, ".apk")
	assert.False(t, ok)

	_, ok = SelectAsset(nil, ".ipa")
	assert.False(t, ok)
}

func TestRetrieve_DownloadsNewestRelease(t *testing.T) {
	api := &fakeReleases{
		releases: []models.GHRelease{{ID: 20, TagName: "v1.0"}, {ID: 10, TagName: "v0.9"}},
		assets: map[int64][]models.GHAsset{
			20: {{ID: 200, Name: "notes.md"}, {ID: 201, Name: "FlutterIpaExport.ipa"}},
			10: {{ID: 100, Name: "old.ipa"}},
		},
		content: map[int64][]byte{201: []byte("PK\x03\x04payload")},
	}
	outDir := filepath.Join(t.TempDir(), "builds")

	dl, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", outDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "FlutterIpaExport.ipa"), dl.Path)
	assert.Equal(t, int64(len("PK\x03\x04payload")), dl.Bytes)
	assert.Equal(t, "v1.0", dl.Release)
	assert.Equal(t, "FlutterIpaExport.ipa", dl.Asset)
	assert.Equal(t, []int64{201}, api.downloads)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04payload", string(data))
	assert.NoFileExists(t, dl.Path+".part")
}

func TestRetrieve_UsesConfiguredNameLocally(t *testing.T) {
	api := &fakeReleases{
		releases: []models.GHRelease{{ID: 1, TagName: "v1.0"}},
		assets:   map[int64][]models.GHAsset{1: {{ID: 11, Name: "Runner.ipa"}}},
		content:  map[int64][]byte{11: []byte("ipa")},
	}
	outDir := t.TempDir()

	dl, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "MyApp.ipa", outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "MyApp.ipa"), dl.Path)
	assert.Equal(t, "Runner.ipa", dl.Asset)
}

func TestRetrieve_NoReleases(t *testing.T) {
	api := &fakeReleases{}
	outDir := filepath.Join(t.TempDir(), "builds")

	_, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", outDir)
	assert.ErrorIs(t, err, ErrNoReleases)
	assert.NoDirExists(t, outDir)
}

func TestRetrieve_NoMatchingAsset(t *testing.T) {
	api := &fakeReleases{
		releases: []models.GHRelease{{ID: 1, TagName: "v1.0"}},
		assets:   map[int64][]models.GHAsset{1: {{ID: 11, Name: "app-release.apk"}}},
	}
	outDir := filepath.Join(t.TempDir(), "builds")

	_, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Contains(t, err.Error(), ".ipa")
	assert.Empty(t, api.downloads)
	assert.NoDirExists(t, outDir)
}

func TestRetrieve_ListFailure(t *testing.T) {
	api := &fakeReleases{releasesErr: errBoom}

	_, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", t.TempDir())
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrNoReleases)
}

func TestRetrieve_FailedDownloadLeavesNoFile(t *testing.T) {
	api := &fakeReleases{
		releases:    []models.GHRelease{{ID: 1, TagName: "v1.0"}},
		assets:      map[int64][]models.GHAsset{1: {{ID: 11, Name: "FlutterIpaExport.ipa"}}},
		content:     map[int64][]byte{11: []byte("truncat")},
		downloadErr: errBoom,
	}
	outDir := t.TempDir()

	_, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, errBoom)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRetrieve_OverwritesPreviousArtifact(t *testing.T) {
	api := &fakeReleases{
		releases: []models.GHRelease{{ID: 1, TagName: "v1.0"}},
		assets:   map[int64][]models.GHAsset{1: {{ID: 11, Name: "FlutterIpaExport.ipa"}}},
		content:  map[int64][]byte{11: []byte("new")},
	}
	outDir := t.TempDir()
	dest := filepath.Join(outDir, "FlutterIpaExport.ipa")
	require.NoError(t, os.WriteFile(dest, []byte("old build"), 0644))

	_, err := NewRetriever(api, nil).Retrieve(context.Background(), testRepo, "FlutterIpaExport.ipa", outDir)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
