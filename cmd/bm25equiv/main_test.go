package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

const sampleLog = `ERROR disk full on /var
error disk full on /var
warning cpu hot
info service started
info service stopped
`

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestRunPassWritesArtifacts(t *testing.T) {
	path := writeCorpus(t)
	out := t.TempDir()

	code := dispatch([]string{"run",
		"--corpus", path,
		"--q", "disk full",
		"--q", "service",
		"--k", "3",
		"--out", out,
		"--quiet",
	})
	require.Equal(t, apperrors.ExitPass, code)

	for _, name := range []string{"manifest.json", "topk_full.json", "topk_reduced.json", "diff.json", "report.txt"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	text, err := os.ReadFile(filepath.Join(out, "report.txt"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(text), "STATUS: PASS"))
}

func TestRunDefaultsToRunCommand(t *testing.T) {
	code := dispatch([]string{"--corpus", writeCorpus(t), "--q", "cpu", "--k", "2", "--quiet"})
	assert.Equal(t, apperrors.ExitPass, code)
}

func TestRunExitCodes(t *testing.T) {
	path := writeCorpus(t)
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing corpus", []string{"run", "--q", "disk"}, apperrors.ExitMalformedInput},
		{"missing queries", []string{"run", "--corpus", path}, apperrors.ExitMalformedInput},
		{"bad strategy", []string{"run", "--corpus", path, "--q", "disk", "--strategy", "simhash"}, apperrors.ExitMalformedInput},
		{"corpus hash mismatch", []string{"run", "--corpus", path, "--q", "disk", "--quiet",
			"--expected-hash", strings.Repeat("0", 64)}, apperrors.ExitHashMismatch},
		{"recomputed without tolerance", []string{"run", "--corpus", path, "--q", "disk", "--quiet",
			"--stats-mode", "recomputed"}, apperrors.ExitNumeric},
		{"unknown command", []string{"frobnicate"}, apperrors.ExitInternal},
		{"help", []string{"run", "--help"}, apperrors.ExitPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, dispatch(tt.args))
		})
	}
}

func TestHashCommand(t *testing.T) {
	assert.Equal(t, apperrors.ExitPass, dispatch([]string{"hash", "--corpus", writeCorpus(t)}))
	assert.Equal(t, apperrors.ExitMalformedInput, dispatch([]string{"hash"}))
}

func TestCheckWithNoSinksEnabled(t *testing.T) {
	assert.Equal(t, apperrors.ExitPass, dispatch([]string{"check"}))
}

func TestRunCombinesAdHocAndFileQueries(t *testing.T) {
	corpusPath := writeCorpus(t)
	queriesPath := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(queriesPath, []byte("service\ncpu hot\n"), 0o644))

	code := dispatch([]string{"run",
		"--corpus", corpusPath,
		"--q", "disk",
		"--queries", queriesPath,
		"--k", "3",
		"--quiet",
	})
	assert.Equal(t, apperrors.ExitPass, code)
}
