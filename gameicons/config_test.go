package gameicons

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

func TestMiB(t *testing.T) {
	for _, tt := range []struct {
		in        string
		wantErr   string
		wantText  string
		wantBytes int64
	}{
		{in: "1Mi", wantText: "1Mi", wantBytes: 1 << 20},
		{in: "500Mi", wantText: "500Mi", wantBytes: 500 << 20},
		{in: "1024Mi", wantText: "1Gi", wantBytes: 1 << 30},
		{in: "2047Mi", wantText: "2047Mi", wantBytes: 2047 << 20},
		{in: "2048Mi", wantText: "2Gi", wantBytes: 2 << 30},
		{in: "1Gi", wantText: "1Gi", wantBytes: 1 << 30},
		{in: "3Gi", wantText: "3Gi", wantBytes: 3 << 30},
		//
		{in: "3GiB", wantErr: "valid suffixes: Mi, Gi", wantText: "0Mi"},
		{in: "3xGi", wantErr: "invalid size: strconv.Atoi", wantText: "0Mi"},
	} {
		t.Run("", func(t *testing.T) {
			r := require.New(t)

			var s MiB
			err := s.UnmarshalText([]byte(tt.in))
			if tt.wantErr == "" {
				r.NoError(err)
			} else {
				r.Error(err)
				r.Contains(err.Error(), tt.wantErr)
			}

			r.Equal(tt.wantText, s.String())
			r.Equal(tt.wantBytes, s.Bytes())
		})
	}
}

func TestConfig(t *testing.T) {
	newFlags := func() (*Config, *pflag.FlagSet) {
		var cfg Config
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		cfg.RegisterFlags(flags)
		return &cfg, flags
	}

	t.Run("defaults", func(t *testing.T) {
		r := require.New(t)

		cfg, flags := newFlags()
		r.NoError(flags.Parse(nil))
		r.NoError(cfg.Finalize(flags, ""))

		r.Equal(8080, cfg.ServerPort)
		r.Equal("./var", cfg.Dir)
		r.Equal(128, cfg.IconMaxSize)
		r.Equal(time.Minute, cfg.LoadTimeout)
		r.Equal(MiB(100), cfg.IconCacheSize)
		r.Equal(rlog.LevelInfo, cfg.LogLevel)
	})

	t.Run("flags", func(t *testing.T) {
		r := require.New(t)

		cfg, flags := newFlags()
		r.NoError(flags.Parse([]string{
			"--port=9000", "--icon-cache-size=2Gi", "--log-level=debug", "--load-timeout=5s",
		}))
		r.NoError(cfg.Finalize(flags, ""))

		r.Equal(9000, cfg.ServerPort)
		r.Equal(MiB(2048), cfg.IconCacheSize)
		r.Equal(rlog.LevelDebug, cfg.LogLevel)
		r.Equal(5*time.Second, cfg.LoadTimeout)

		cfg, flags = newFlags()
		r.Error(flags.Parse([]string{"--log-level=trace"}))
	})

	t.Run("config file", func(t *testing.T) {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "config.toml")
		r.NoError(os.WriteFile(path, []byte(`
port = 9000
dir = "/var/lib/gameicons"
icon-cache-size = "1Gi"
icon-max-size = 64
load-timeout = "10s"
`), 0o600))

		cfg, flags := newFlags()
		r.NoError(flags.Parse([]string{"--port=7000"}))
		r.NoError(cfg.Finalize(flags, path))

		r.Equal(7000, cfg.ServerPort) // flags take precedence
		r.Equal("/var/lib/gameicons", cfg.Dir)
		r.Equal(MiB(1024), cfg.IconCacheSize)
		r.Equal(64, cfg.IconMaxSize)
		r.Equal(10*time.Second, cfg.LoadTimeout)
	})

	t.Run("invalid config file", func(t *testing.T) {
		dir := t.TempDir()
		for name, content := range map[string]string{
			"unknown option": `xyz = 1`,
			"invalid value":  `icon-cache-size = "1GB"`,
			"invalid toml":   `port = `,
		} {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			cfg, flags := newFlags()
			require.NoError(t, flags.Parse(nil))
			require.Error(t, cfg.Finalize(flags, path), name)
		}
	})

	t.Run("validation", func(t *testing.T) {
		r := require.New(t)

		cfg, flags := newFlags()
		r.NoError(flags.Parse([]string{"--port=0"}))
		r.ErrorContains(cfg.Finalize(flags, ""), "server port")

		cfg, flags = newFlags()
		r.NoError(flags.Parse([]string{"--icon-max-size=-1"}))
		r.ErrorContains(cfg.Finalize(flags, ""), "icon max size")
	})
}

func TestParseTitleID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]TitleID{
		"0005000010101C00":   0x0005000010101c00,
		"0x0005000010101c00": 0x0005000010101c00,
		" 1 ":                1,
		"ffffffffffffffff":   0xffffffffffffffff,
	} {
		got, err := ParseTitleID(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "0x", "xyz", "10000000000000000"} {
		_, err := ParseTitleID(in)
		require.Error(t, err, in)
	}

	require.Equal(t, "0005000010101c00", TitleID(0x0005000010101c00).String())
}
