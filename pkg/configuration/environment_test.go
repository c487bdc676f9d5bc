package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "CHANGE_ORDERS_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "changeorders")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("CHANGE_ORDERS_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("CHANGE_ORDERS_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("CHANGE_ORDERS_TEST_ENV_LOAD"))
}

func TestChangeOrdersOptions_Validate(t *testing.T) {
	valid := func() ChangeOrdersOptions {
		return ChangeOrdersOptions{
			Storage:              " Memory ",
			NumberPrefix:         "co",
			NumberPad:            4,
			NumberingMaxAttempts: 3,
			DefaultCurrency:      "usd",
		}
	}

	t.Run("normalizes", func(t *testing.T) {
		o := valid()
		require.NoError(t, o.Validate())
		require.Equal(t, StorageMemory, o.Storage)
		require.Equal(t, "CO", o.NumberPrefix)
		require.Equal(t, "USD", o.DefaultCurrency)
	})

	cases := map[string]func(o *ChangeOrdersOptions){
		"unknown storage":  func(o *ChangeOrdersOptions) { o.Storage = "redis" },
		"empty prefix":     func(o *ChangeOrdersOptions) { o.NumberPrefix = "  " },
		"pad too small":    func(o *ChangeOrdersOptions) { o.NumberPad = 0 },
		"no attempts":      func(o *ChangeOrdersOptions) { o.NumberingMaxAttempts = 0 },
		"unknown currency": func(o *ChangeOrdersOptions) { o.DefaultCurrency = "XXXX" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := valid()
			mutate(&o)
			require.Error(t, o.Validate())
		})
	}
}

func TestLoad_ParsesEnvironment(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("CHANGE_ORDERS_STORAGE", "memory")
	t.Setenv("CHANGE_ORDERS_NUMBER_PAD", "6")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PATH", filepath.Join(tmp, "app.log"))
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	conf, err := Load([]string{filepath.Join(tmp, "missing.env")})
	require.NoError(t, err)
	t.Cleanup(conf.Unload)

	require.Equal(t, StorageMemory, conf.ChangeOrders.Storage)
	require.Equal(t, 6, conf.ChangeOrders.NumberPad)
	require.Equal(t, logrus.DebugLevel, conf.LogrusLogLevel())
	require.Equal(t, []string{"http://a.test", "http://b.test"}, conf.AllowedOrigins())
	require.Equal(t, "localhost:3200", conf.SocketAddress)
	require.NotNil(t, conf.Logger())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}
