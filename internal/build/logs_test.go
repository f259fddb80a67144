package build

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeZip(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		if strings.HasSuffix(name, "/") {
			_, err := zw.Create(name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractLogs(t *testing.T) {
	data := makeZip(t, map[string]string{
		"build/1_Set up job.txt": "Runner image macos-14\n",
		"build/5_Build iOS.txt":  "Xcode build done",
	}, []string{"build/", "build/1_Set up job.txt", "build/5_Build iOS.txt"})

	files, err := ExtractLogs(data)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "build/1_Set up job.txt", files[0].Name)
	assert.Equal(t, "Runner image macos-14\n", string(files[0].Content))
	assert.Equal(t, "build/5_Build iOS.txt", files[1].Name)
}

func TestExtractLogs_NotAZip(t *testing.T) {
	_, err := ExtractLogs([]byte("<html>rate limited</html>"))
	assert.Error(t, err)
}

func TestLogFetcher_PrintsEveryFile(t *testing.T) {
	api := &fakeLogs{data: makeZip(t, map[string]string{
		"0_build.txt":  "step one\nstep two",
		"1_upload.txt": "uploaded\n",
	}, []string{"0_build.txt", "1_upload.txt"})}

	var out bytes.Buffer
	err := NewLogFetcher(api, &out, nil).Fetch(context.Background(), testRepo, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)
	assert.Equal(t,
		"==> 0_build.txt <==\nstep one\nstep two\n==> 1_upload.txt <==\nuploaded\n",
		out.String())
}

func TestLogFetcher_Errors(t *testing.T) {
	var out bytes.Buffer

	err := NewLogFetcher(&fakeLogs{err: errBoom}, &out, nil).Fetch(context.Background(), testRepo, 1)
	assert.ErrorIs(t, err, errBoom)

	err = NewLogFetcher(&fakeLogs{data: []byte("garbage")}, &out, nil).Fetch(context.Background(), testRepo, 1)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
