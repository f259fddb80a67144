package workflow

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is the workflow file under .github/workflows
	DefaultFileName = "build_ios.yml"

	DefaultReleaseTag = "v1.0"

	// OutputDir is where the Flutter iOS build places Runner.app
	OutputDir = "build/ios/iphoneos"

	packageStepID = "package"
	uploadStepID  = "upload"
)

var artifactNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*\.[A-Za-z0-9]+$`)

var ErrInvalidArtifactName = errors.New("invalid artifact name")

// ValidateArtifactName requires a plain file name with an extension
func ValidateArtifactName(name string) error {
	if !artifactNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q - expected a file name such as App.ipa", ErrInvalidArtifactName, name)
	}
	return nil
}

// Path returns the repository-relative path of a workflow file
func Path(fileName string) string {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return path.Join(".github", "workflows", fileName)
}

// Params are the values substituted into the workflow
type Params struct {
	ArtifactName string
	ReleaseTag   string
	ReleaseBody  string
	RunsOn       string
}

func (p Params) withDefaults() Params {
	if p.ReleaseTag == "" {
		p.ReleaseTag = DefaultReleaseTag
	}
	if p.ReleaseBody == "" {
		p.ReleaseBody = "This is first release"
	}
	if p.RunsOn == "" {
		p.RunsOn = "macos-latest"
	}
	return p
}

type Document struct {
	Name string         `yaml:"name"`
	On   Triggers       `yaml:"on"`
	Jobs map[string]Job `yaml:"jobs"`
}

type Triggers struct {
	WorkflowDispatch *struct{} `yaml:"workflow_dispatch"`
}

type Job struct {
	Name   string `yaml:"name"`
	RunsOn string `yaml:"runs-on"`
	Steps  []Step `yaml:"steps"`
}

type Step struct {
	ID               string            `yaml:"id,omitempty"`
	Name             string            `yaml:"name,omitempty"`
	Uses             string            `yaml:"uses,omitempty"`
	Run              string            `yaml:"run,omitempty"`
	With             map[string]string `yaml:"with,omitempty"`
	WorkingDirectory string            `yaml:"working-directory,omitempty"`
}

const buildJob = "build-ios"

// Render produces the workflow that builds the Flutter iOS app, zips Payload
// into p.ArtifactName and attaches it to the release tagged p.ReleaseTag.
func Render(p Params) ([]byte, error) {
	if err := ValidateArtifactName(p.ArtifactName); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	doc := Document{
		Name: "iOS-ipa-build",
		On:   Triggers{WorkflowDispatch: &struct{}{}},
		Jobs: map[string]Job{
			buildJob: {
				Name:   "🎉 iOS Build",
				RunsOn: p.RunsOn,
				Steps: []Step{
					{Uses: "actions/checkout@v4"},
					{Uses: "subosito/flutter-action@v2", With: map[string]string{
						"channel":      "stable",
						"architecture": "x64",
					}},
					{Run: "flutter pub get"},
					{Run: "pod repo update", WorkingDirectory: "ios"},
					{Run: "flutter build ios --release --no-codesign"},
					{Run: "mkdir Payload", WorkingDirectory: OutputDir},
					{Run: "mv Runner.app/ Payload", WorkingDirectory: OutputDir},
					{
						ID:               packageStepID,
						Name:             "Zip output",
						Run:              "zip -qq -r -9 " + p.ArtifactName + " Payload",
						WorkingDirectory: OutputDir,
					},
					{
						ID:   uploadStepID,
						Name: "Upload binaries to release",
						Uses: "svenstaro/upload-release-action@v2",
						With: map[string]string{
							"repo_token": "${{ secrets.GITHUB_TOKEN }}",
							"file":       path.Join(OutputDir, p.ArtifactName),
							"tag":        p.ReleaseTag,
							"overwrite":  "true",
							"body":       p.ReleaseBody,
						},
					},
				},
			},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}
	return out, nil
}

// ExtractArtifactName reads back the archive name from a rendered workflow.
// The packaging and upload steps must agree on it.
func ExtractArtifactName(data []byte) (string, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse workflow: %w", err)
	}

	job, ok := doc.Jobs[buildJob]
	if !ok {
		return "", fmt.Errorf("workflow has no %s job", buildJob)
	}

	var packaged, uploaded string
	for _, step := range job.Steps {
		switch step.ID {
		case packageStepID:
			fields := strings.Fields(step.Run)
			// zip -qq -r -9 <archive> Payload
			if len(fields) < 2 || fields[0] != "zip" {
				return "", fmt.Errorf("unexpected packaging command: %q", step.Run)
			}
			packaged = fields[len(fields)-2]
		case uploadStepID:
			uploaded = path.Base(step.With["file"])
		}
	}

	if packaged == "" {
		return "", errors.New("workflow has no packaging step")
	}
	if uploaded == "" {
		return "", errors.New("workflow has no upload step")
	}
	if packaged != uploaded {
		return "", fmt.Errorf("packaging step writes %q but upload step sends %q", packaged, uploaded)
	}
	return packaged, nil
}
