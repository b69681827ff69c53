package gameicons

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

type Config struct {
	BuildInfo BuildInfo

	ServerPort int
	Dir        string
	TitlesFile string

	IconMaxSize int
	LoadTimeout time.Duration

	IconCacheSize   MiB
	IconCacheMaxAge time.Duration

	LogLevel rlog.Level
}

type BuildInfo struct {
	ShortGitHash string
	CommitTime   string
}

type MiB int

func (mb MiB) Bytes() int64 {
	return int64(mb) << 20
}

func (mb MiB) String() string {
	text, _ := mb.MarshalText()
	return string(text)
}

func (mb MiB) MarshalText() (text []byte, err error) {
	if mb >= 1024 && mb%1024 == 0 {
		return []byte(strconv.Itoa(int(mb/1024)) + "Gi"), nil
	}
	return []byte(strconv.Itoa(int(mb)) + "Mi"), nil
}

func (mb *MiB) UnmarshalText(data []byte) error {
	text := string(data)

	mul := 1
	switch {
	case strings.HasSuffix(text, "Mi"):
	case strings.HasSuffix(text, "Gi"):
		mul = 1024
	default:
		return fmt.Errorf("valid suffixes: Mi, Gi")
	}
	n, err := strconv.Atoi(text[:len(text)-2])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}

	*mb = MiB(n * mul)
	return nil
}

type flagParams struct {
	// p is a pointer to a value.
	p            any
	defaultValue any
	desc         string
}

func (cfg *Config) getFlagParams() map[string]flagParams {
	return map[string]flagParams{
		"port": {
			p: &cfg.ServerPort, defaultValue: 8080, desc: "Server port",
		},
		"dir": {
			p: &cfg.Dir, defaultValue: "./var", desc: "Directory for app data (icon cache and etc.)",
		},
		"titles": {
			p: &cfg.TitlesFile, defaultValue: "./titles.yaml", desc: "" +
				"Path to the title catalog, YAML file with the following format:\n" +
				"  titles:\n" +
				"    - id: \"0005000010101c00\"\n" +
				"      name: \"Title name\"\n" +
				"      path: \"/games/title\" # directory or .zip archive\n",
		},
		//
		"icon-max-size": {
			p: &cfg.IconMaxSize, defaultValue: 128, desc: "Max icon width and height, larger icons are scaled down. 0 disables scaling",
		},
		"load-timeout": {
			p: &cfg.LoadTimeout, defaultValue: time.Minute, desc: "Max time to load a single icon",
		},
		"icon-cache-size": {
			p: &cfg.IconCacheSize, defaultValue: MiB(100), desc: "Max total size of cached icons. 0Mi disables the persistent cache",
		},
		"icon-cache-max-age": {
			p: &cfg.IconCacheMaxAge, defaultValue: 90 * 24 * time.Hour, desc: "Max age of unused cached icons",
		},
		//
		"log-level": {
			p: &cfg.LogLevel, defaultValue: rlog.LevelInfo, desc: "Set the minimal log level. One of: debug, info, warn, error",
		},
	}
}

// RegisterFlags registers config flags with default values. The config is filled
// during flag parsing, [Config.Finalize] must be called afterwards.
func (cfg *Config) RegisterFlags(flags *pflag.FlagSet) {
	cfg.BuildInfo = readBuildInfo()

	for name, params := range cfg.getFlagParams() {
		switch p := params.p.(type) {
		case *bool:
			flags.BoolVar(p, name, params.defaultValue.(bool), params.desc)
		case *int:
			flags.IntVar(p, name, params.defaultValue.(int), params.desc)
		case *string:
			flags.StringVar(p, name, params.defaultValue.(string), params.desc)
		case *time.Duration:
			flags.DurationVar(p, name, params.defaultValue.(time.Duration), params.desc)
		case textValue:
			def := params.defaultValue.(encoding.TextMarshaler)
			text, err := def.MarshalText()
			if err != nil {
				panic(fmt.Sprintf("invalid default value of flag %q: %s", name, err))
			}
			if err := p.UnmarshalText(text); err != nil {
				panic(fmt.Sprintf("invalid default value of flag %q: %s", name, err))
			}
			flags.Var(textFlag{p}, name, params.desc)
		default:
			panic(fmt.Sprintf("flag %q has unsupported type: %T", name, p))
		}
	}
}

// Finalize applies values from the config file (if it is passed) and validates the config.
// Values of explicitly set flags take precedence over the config file.
func (cfg *Config) Finalize(flags *pflag.FlagSet, configFile string) error {
	if configFile != "" {
		if err := applyConfigFile(flags, configFile); err != nil {
			return err
		}
	}

	if cfg.ServerPort <= 0 {
		return errors.New("server port must be > 0")
	}
	if cfg.Dir == "" {
		return errors.New("dir can't be empty")
	}
	if cfg.TitlesFile == "" {
		return errors.New("titles file can't be empty")
	}
	if cfg.IconMaxSize < 0 {
		return errors.New("icon max size can't be negative")
	}
	if cfg.LoadTimeout <= 0 {
		return errors.New("load timeout must be > 0")
	}
	if cfg.IconCacheSize < 0 {
		return errors.New("icon cache size can't be negative")
	}
	return nil
}

// applyConfigFile reads a TOML file with flag names as keys, for example:
//
//	port = 8080
//	icon-cache-size = "1Gi"
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("couldn't read config file: %w", err)
	}

	var values map[string]any
	if err := toml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("couldn't parse config file %q: %w", path, err)
	}

	for name, v := range values {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown config file option %q", name)
		}
		if f.Changed {
			continue
		}
		if err := flags.Set(name, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("invalid value of config file option %q: %w", name, err)
		}
	}
	return nil
}

type textValue interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

// textFlag adapts [encoding.TextUnmarshaler] to [pflag.Value].
type textFlag struct {
	v textValue
}

func (f textFlag) String() string {
	text, _ := f.v.MarshalText()
	return string(text)
}

func (f textFlag) Set(s string) error {
	return f.v.UnmarshalText([]byte(s))
}

func (f textFlag) Type() string {
	return strings.ToLower(reflect.TypeOf(f.v).Elem().Name())
}

func readBuildInfo() BuildInfo {
	res := BuildInfo{
		ShortGitHash: "unknown",
		CommitTime:   "unknown",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return res
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			res.ShortGitHash = s.Value
			if len(res.ShortGitHash) > 7 {
				res.ShortGitHash = res.ShortGitHash[:7]
			}

		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				res.CommitTime = t.UTC().Format("2006-01-02 15:04:05 UTC")
			}
		}
	}
	return res
}

func (info BuildInfo) Print() {
	fmt.Fprintf(os.Stderr, `
    gameicons

    Commit Hash: %q
    Commit Time: %q

`,
		info.ShortGitHash,
		info.CommitTime,
	)
}

func (cfg Config) Print() {
	flags := cfg.getFlagParams()

	var (
		names         = make([]string, 0, len(flags))
		maxNameLength int
	)
	for name := range flags {
		if len(name) > maxNameLength {
			maxNameLength = len(name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Fprint(os.Stderr, "    Config:\n\n")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "        --%-*s = %v\n", maxNameLength, name, reflect.ValueOf(flags[name].p).Elem())
	}
	fmt.Fprint(os.Stderr, "\n")
}
