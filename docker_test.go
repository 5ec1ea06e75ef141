package watchlog_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type composeFile struct {
	Services map[string]struct {
		Image    string   `yaml:"image"`
		Command  []string `yaml:"command"`
		Networks []string `yaml:"networks"`
		Ports    []string `yaml:"ports"`
	} `yaml:"services"`
	Networks map[string]*struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	require.NoError(t, err, "%s should exist", name)
	return string(data)
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	var c composeFile
	require.NoError(t, yaml.Unmarshal([]byte(readFile(t, "docker-compose.yml")), &c))
	return c
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	assert.Contains(t, content, "FROM golang:")

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	assert.True(t,
		strings.Contains(lastFrom, "gcr.io/distroless") || strings.Contains(lastFrom, "alpine") || strings.Contains(lastFrom, "scratch"),
		"final stage should use a minimal base image, got: %s", lastFrom)
}

func TestDockerfileBinaryAndEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	assert.Contains(t, content, "./cmd/watchlog")
	assert.Contains(t, content, "ENTRYPOINT")
	// distrolessにはシェルが無いためバイナリのサブコマンドでヘルスチェックする
	assert.Contains(t, content, `"healthcheck"`)
}

func TestDockerComposeServices(t *testing.T) {
	c := loadCompose(t)

	for _, name := range []string{"db", "migrate", "api", "worker"} {
		assert.Contains(t, c.Services, name)
	}
	assert.True(t, strings.HasPrefix(c.Services["db"].Image, "postgres:"))
	assert.Equal(t, []string{"serve"}, c.Services["api"].Command)
	assert.Equal(t, []string{"worker"}, c.Services["worker"].Command)
	assert.Equal(t, []string{"migrate"}, c.Services["migrate"].Command)
}

func TestDockerComposeNetworks(t *testing.T) {
	c := loadCompose(t)

	// DBは内部ネットワークのみに接続する
	require.Contains(t, c.Networks, "internal")
	require.NotNil(t, c.Networks["internal"])
	assert.True(t, c.Networks["internal"].Internal)
	assert.Equal(t, []string{"internal"}, c.Services["db"].Networks)

	// 外部プロバイダを呼ぶapiとworkerのみ外部通信を許可する
	assert.Contains(t, c.Services["api"].Networks, "external")
	assert.Contains(t, c.Services["worker"].Networks, "external")
	assert.NotContains(t, c.Services["migrate"].Networks, "external")
}

func TestEnvExampleListsConfigVariables(t *testing.T) {
	content := readFile(t, ".env.example")

	for _, key := range []string{"DATABASE_URL", "OMDB_API_KEY", "REFRESH_INTERVAL", "DIALOGUE_SESSION_TTL", "CORS_ALLOWED_ORIGIN"} {
		assert.Contains(t, content, key+"=")
	}
}
