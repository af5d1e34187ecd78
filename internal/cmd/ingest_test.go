package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetIngestFlags restores the package-level flag values after a test
// mutates them.
func resetIngestFlags(t *testing.T) {
	t.Helper()
	after, before := postedAfter, postedBefore
	summary, validation := summaryCSVPath, validationCSVPath
	t.Cleanup(func() {
		postedAfter, postedBefore = after, before
		summaryCSVPath, validationCSVPath = summary, validation
	})
}

// clearEnv unsets a variable for the test but restores the caller's value
// afterwards.
func clearEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestApplyEnvFallbacks(t *testing.T) {
	t.Run("DotenvSuppliesUnsetFlags", func(t *testing.T) {
		resetIngestFlags(t)
		for _, key := range []string{"POSTED_AFTER", "POSTED_BEFORE", "SUMMARY_CSV", "VALIDATION_CSV"} {
			clearEnv(t, key)
		}

		// Flags are registered (and their defaults captured) at package
		// initialization, long before any .env file is read. Values that
		// only exist in the file must still reach the run.
		envFile := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envFile, []byte(
			"POSTED_AFTER=2025-08-01T00:00:00Z\n"+
				"POSTED_BEFORE=2025-08-31T00:00:00Z\n"+
				"VALIDATION_CSV=validation.csv\n",
		), 0o600))
		require.NoError(t, godotenv.Load(envFile))

		postedAfter, postedBefore = "", ""
		summaryCSVPath, validationCSVPath = "", ""
		applyEnvFallbacks()

		assert.Equal(t, "2025-08-01T00:00:00Z", postedAfter)
		assert.Equal(t, "2025-08-31T00:00:00Z", postedBefore)
		assert.Equal(t, "validation.csv", validationCSVPath)
		assert.Empty(t, summaryCSVPath, "unset in both flag and environment")
	})

	t.Run("ExplicitFlagsWin", func(t *testing.T) {
		resetIngestFlags(t)
		t.Setenv("POSTED_AFTER", "2020-01-01T00:00:00Z")
		t.Setenv("VALIDATION_CSV", "from-env.csv")

		postedAfter = "2025-08-01T00:00:00Z"
		validationCSVPath = "from-flag.csv"
		applyEnvFallbacks()

		assert.Equal(t, "2025-08-01T00:00:00Z", postedAfter)
		assert.Equal(t, "from-flag.csv", validationCSVPath)
	})
}
