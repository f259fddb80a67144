package workflow

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRender_ContainsBuildSteps(t *testing.T) {
	out, err := Render(Params{ArtifactName: "FlutterIpaExport.ipa"})
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, "workflow_dispatch")
	assert.Contains(t, doc, "flutter build ios --release --no-codesign")
	assert.Contains(t, doc, "zip -qq -r -9 FlutterIpaExport.ipa Payload")
	assert.Contains(t, doc, "file: build/ios/iphoneos/FlutterIpaExport.ipa")
	assert.Contains(t, doc, "tag: v1.0")
	assert.Contains(t, doc, "${{ secrets.GITHUB_TOKEN }}")
}

func TestRender_IsValidYAML(t *testing.T) {
	out, err := Render(Params{ArtifactName: "App.ipa", ReleaseTag: "nightly", RunsOn: "macos-14"})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(out, &generic))
	assert.Equal(t, "iOS-ipa-build", generic["name"])

	jobs, ok := generic["jobs"].(map[string]any)
	require.True(t, ok)
	job, ok := jobs["build-ios"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "macos-14", job["runs-on"])
}

func TestRender_Deterministic(t *testing.T) {
	a, err := Render(Params{ArtifactName: "App.ipa"})
	require.NoError(t, err)
	b, err := Render(Params{ArtifactName: "App.ipa"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRender_RejectsInvalidNames(t *testing.T) {
	for _, name := range []string{"", "noext", "dir/App.ipa", "App .ipa", ".ipa", "App.ipa; rm -rf /"} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			_, err := Render(Params{ArtifactName: name})
			assert.ErrorIs(t, err, ErrInvalidArtifactName)
		})
	}
}

func TestRenderExtract_RoundTrip(t *testing.T) {
	names := []string{"FlutterIpaExport.ipa", "app-release.ipa", "My_App.v2.ipa", "build.zip"}

	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-."
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		var b strings.Builder
		b.WriteByte('a' + byte(rng.Intn(26)))
		for j := 0; j < rng.Intn(20); j++ {
			b.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		b.WriteString(".ipa")
		names = append(names, b.String())
	}

	for _, name := range names {
		out, err := Render(Params{ArtifactName: name})
		require.NoError(t, err, name)

		got, err := ExtractArtifactName(out)
		require.NoError(t, err, name)
		assert.Equal(t, name, got)
	}
}

func TestExtractArtifactName_Mismatch(t *testing.T) {
	out, err := Render(Params{ArtifactName: "App.ipa"})
	require.NoError(t, err)

	tampered := strings.Replace(string(out), "file: build/ios/iphoneos/App.ipa", "file: build/ios/iphoneos/Other.ipa", 1)
	_, err = ExtractArtifactName([]byte(tampered))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Other.ipa")
}

func TestExtractArtifactName_MissingJob(t *testing.T) {
	_, err := ExtractArtifactName([]byte("name: other\njobs:\n  test:\n    runs-on: ubuntu-latest\n"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	assert.Equal(t, ".github/workflows/build_ios.yml", Path(""))
	assert.Equal(t, ".github/workflows/ci.yml", Path("ci.yml"))
}
