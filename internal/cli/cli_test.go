package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"company-lookup/internal/lookup"
	"company-lookup/internal/model"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/firma/"):
			cui := strings.TrimPrefix(r.URL.Path, "/api/firma/")
			_ = json.NewEncoder(w).Encode(model.Company{CUI: cui, CompanyName: "Company " + cui})
		case strings.HasPrefix(r.URL.Path, "/api/bilant/"):
			_ = json.NewEncoder(w).Encode([]model.FinancialRecord{{Year: 2023}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setUp points the CLI at a fresh database and a fake backend.
func setUp(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("LOOKUP_STORAGE_DRIVER", "sqlite")
	t.Setenv("LOOKUP_STORAGE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("LOOKUP_BACKEND_BASE_URL", newBackend(t).URL)
	t.Setenv("LOOKUP_LOGGING_LEVEL", "error")
}

// resetFlags restores defaults between runs of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLookupThenHistory(t *testing.T) {
	setUp(t)

	out, err := execute(t, "lookup", "14399840", "--years", "2")
	require.NoError(t, err)

	var res lookup.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Company 14399840", res.Data.Company.CompanyName)
	assert.Equal(t, 2, res.Data.Years)
	assert.False(t, res.FromCache)

	out, err = execute(t, "lookup", "14399840", "--years", "2")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.FromCache)

	_, err = execute(t, "lookup", "555")
	require.NoError(t, err)

	out, err = execute(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "555\n14399840\n", out)

	out, err = execute(t, "history", "list", "--json")
	require.NoError(t, err)
	var items []string
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Equal(t, []string{"555", "14399840"}, items)

	_, err = execute(t, "history", "remove", "555")
	require.NoError(t, err)
	out, _ = execute(t, "history", "list")
	assert.Equal(t, "14399840\n", out)

	_, err = execute(t, "history", "clear")
	require.NoError(t, err)
	out, _ = execute(t, "history", "list")
	assert.Empty(t, out)
}

func TestLookup_Validation(t *testing.T) {
	setUp(t)

	_, err := execute(t, "lookup", "RO123")
	assert.ErrorIs(t, err, lookup.ErrInvalidIdentifier)

	_, err = execute(t, "lookup", "123", "--years", "20")
	assert.ErrorIs(t, err, lookup.ErrInvalidYears)

	_, err = execute(t, "lookup", "123", "--refresh", "--update")
	assert.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	setUp(t)

	for _, years := range []string{"1", "2"} {
		_, err := execute(t, "lookup", "123", "--years", years)
		require.NoError(t, err)
	}
	_, err := execute(t, "lookup", "456")
	require.NoError(t, err)

	out, err := execute(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries: 3")
	assert.Contains(t, out, "expired: 0")
	assert.Contains(t, out, " KB")

	for _, bad := range []string{"0", "-1", "11"} {
		_, err = execute(t, "cache", "clear", "123", "--years", bad)
		assert.ErrorIs(t, err, lookup.ErrInvalidYears, "years %s", bad)
	}
	out, _ = execute(t, "cache", "stats")
	assert.Contains(t, out, "entries: 3")

	_, err = execute(t, "cache", "clear", "123", "--years", "1")
	require.NoError(t, err)
	out, _ = execute(t, "cache", "stats")
	assert.Contains(t, out, "entries: 2")

	out, err = execute(t, "cache", "clear", "123")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 entries\n", out)

	out, err = execute(t, "cache", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 entries\n", out)

	out, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 entries\n", out)

	// history survives a cache clear
	out, _ = execute(t, "history", "list")
	assert.Equal(t, "456\n123\n", out)
}
