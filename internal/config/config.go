package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dailypost/internal/core/domain"
)

const (
	GeneratorBrowser = "browser"
	GeneratorHTTP    = "http"

	CaptionModeRandom = "random"
	CaptionModeFixed  = "fixed"
)

// DefaultCaptions is the caption bank used when none is configured.
var DefaultCaptions = []string{
	"a space I feel like I've been before",
	"the silence in this place is louder than memory",
	"this feels like a dream I forgot",
	"lost between nowhere and nothing",
	"the sound of air and absence",
	"my shadow doesn't belong here",
}

// Config is the immutable process configuration. Build it with Load.
type Config struct {
	Username string `yaml:"-"`
	Password string `yaml:"-"`

	Prompt      string   `yaml:"prompt"`
	CaptionMode string   `yaml:"caption_mode"`
	Captions    []string `yaml:"captions"`

	Schedule ScheduleConfig `yaml:"schedule"`
	Generate GenerateConfig `yaml:"generate"`
	Image    ImageConfig    `yaml:"image"`
	Publish  PublishConfig  `yaml:"publish"`

	DataDir       string `yaml:"data_dir"`
	KeepArtifacts bool   `yaml:"keep_artifacts"`
	LogFile       string `yaml:"log_file"`
	Debug         bool   `yaml:"debug"`
}

type ScheduleConfig struct {
	PostCount       int           `yaml:"post_count"`
	WindowStart     int           `yaml:"window_start"`
	WindowEnd       int           `yaml:"window_end"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MissedSlotGrace time.Duration `yaml:"missed_slot_grace"`
	Timezone        string        `yaml:"timezone"`
}

type GenerateConfig struct {
	Kind            string        `yaml:"kind"`
	WaitBudget      time.Duration `yaml:"wait_budget"`
	AcquireDeadline time.Duration `yaml:"acquire_deadline"`
	Headless        bool          `yaml:"headless"`
	DriverCommand   []string      `yaml:"driver_command"`
	ProfileDir      string        `yaml:"profile_dir"`
	BaseURL         string        `yaml:"base_url"`
	APIToken        string        `yaml:"-"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

type ImageConfig struct {
	StripBottomPx int `yaml:"strip_bottom_px"`
	TargetSide    int `yaml:"target_side"`
	MaxBytes      int `yaml:"max_bytes"`
	Quality       int `yaml:"quality"`
}

type PublishConfig struct {
	BaseURL          string `yaml:"base_url"`
	SessionCachePath string `yaml:"session_cache_path"`
	RedisURL         string `yaml:"redis_url"`
	RedisKey         string `yaml:"redis_key"`
}

func DefaultConfig() Config {
	return Config{
		Prompt:      "A dreamy, empty hallway lit by flickering neon, no people, silent, liminal space",
		CaptionMode: CaptionModeRandom,
		Captions:    append([]string(nil), DefaultCaptions...),
		Schedule: ScheduleConfig{
			PostCount:    3,
			WindowStart:  6,
			WindowEnd:    23,
			PollInterval: 30 * time.Second,
			Timezone:     "Local",
		},
		Generate: GenerateConfig{
			Kind:          GeneratorBrowser,
			WaitBudget:    2 * time.Minute,
			Headless:      true,
			DriverCommand: []string{"node", "drivers/gemini.js"},
			ProfileDir:    "browser_profile",
			PollInterval:  3 * time.Second,
		},
		Image: ImageConfig{
			StripBottomPx: 50,
			TargetSide:    1080,
			MaxBytes:      8 << 20,
			Quality:       92,
		},
		Publish: PublishConfig{
			BaseURL:          "http://localhost:8090/api",
			SessionCachePath: "session.json",
			RedisKey:         "dailypost:session",
		},
		DataDir: "./data",
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	out := c
	def := DefaultConfig()

	if strings.TrimSpace(out.Prompt) == "" {
		out.Prompt = def.Prompt
	}
	if strings.TrimSpace(out.CaptionMode) == "" {
		out.CaptionMode = def.CaptionMode
	}
	if len(out.Captions) == 0 {
		out.Captions = def.Captions
	}

	if out.Schedule.PostCount <= 0 {
		out.Schedule.PostCount = def.Schedule.PostCount
	}
	if out.Schedule.WindowStart == 0 && out.Schedule.WindowEnd == 0 {
		out.Schedule.WindowStart = def.Schedule.WindowStart
		out.Schedule.WindowEnd = def.Schedule.WindowEnd
	}
	if out.Schedule.PollInterval <= 0 {
		out.Schedule.PollInterval = def.Schedule.PollInterval
	}
	if strings.TrimSpace(out.Schedule.Timezone) == "" {
		out.Schedule.Timezone = def.Schedule.Timezone
	}

	if strings.TrimSpace(out.Generate.Kind) == "" {
		out.Generate.Kind = def.Generate.Kind
	}
	if out.Generate.WaitBudget <= 0 {
		out.Generate.WaitBudget = def.Generate.WaitBudget
	}
	if out.Generate.AcquireDeadline <= 0 {
		out.Generate.AcquireDeadline = out.Generate.WaitBudget + 30*time.Second
	}
	if len(out.Generate.DriverCommand) == 0 {
		out.Generate.DriverCommand = def.Generate.DriverCommand
	}
	if strings.TrimSpace(out.Generate.ProfileDir) == "" {
		out.Generate.ProfileDir = def.Generate.ProfileDir
	}
	if out.Generate.PollInterval <= 0 {
		out.Generate.PollInterval = def.Generate.PollInterval
	}

	if out.Image.StripBottomPx < 0 {
		out.Image.StripBottomPx = 0
	}
	if out.Image.TargetSide <= 0 {
		out.Image.TargetSide = def.Image.TargetSide
	}
	if out.Image.MaxBytes <= 0 {
		out.Image.MaxBytes = def.Image.MaxBytes
	}
	if out.Image.Quality <= 0 || out.Image.Quality > 100 {
		out.Image.Quality = def.Image.Quality
	}

	if strings.TrimSpace(out.Publish.BaseURL) == "" {
		out.Publish.BaseURL = def.Publish.BaseURL
	}
	if strings.TrimSpace(out.Publish.SessionCachePath) == "" {
		out.Publish.SessionCachePath = def.Publish.SessionCachePath
	}
	if strings.TrimSpace(out.Publish.RedisKey) == "" {
		out.Publish.RedisKey = def.Publish.RedisKey
	}
	if strings.TrimSpace(out.DataDir) == "" {
		out.DataDir = def.DataDir
	}
	return out
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return errors.New("publishing credentials are required (set PUBLISH_USERNAME and PUBLISH_PASSWORD)")
	}
	s := c.Schedule
	if s.WindowStart < 0 || s.WindowEnd > 24 || s.WindowStart >= s.WindowEnd {
		return fmt.Errorf("schedule window [%d,%d) is invalid", s.WindowStart, s.WindowEnd)
	}
	if max := (s.WindowEnd - s.WindowStart) * 60; s.PostCount < 1 || s.PostCount > max {
		return fmt.Errorf("schedule.post_count must be in 1..%d, got %d", max, s.PostCount)
	}
	if s.PollInterval >= time.Minute {
		return fmt.Errorf("schedule.poll_interval must be shorter than one minute, got %s", s.PollInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Generate.Kind {
	case GeneratorBrowser:
	case GeneratorHTTP:
		if strings.TrimSpace(c.Generate.BaseURL) == "" {
			return errors.New("generate.base_url is required for the http generator")
		}
	default:
		return fmt.Errorf("unknown generate.kind %q", c.Generate.Kind)
	}
	switch c.CaptionMode {
	case CaptionModeRandom, CaptionModeFixed:
	default:
		return fmt.Errorf("unknown caption_mode %q", c.CaptionMode)
	}
	return nil
}

// Location resolves Schedule.Timezone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// Credentials returns the publishing identity.
func (c Config) Credentials() domain.Credentials {
	return domain.Credentials{Username: c.Username, Password: c.Password}
}

// Constraints returns the target platform constraints.
func (c Config) Constraints() domain.Constraints {
	return domain.Constraints{
		StripBottomPx: c.Image.StripBottomPx,
		TargetSide:    c.Image.TargetSide,
		MaxBytes:      c.Image.MaxBytes,
		MIMEType:      "image/jpeg",
	}
}

// Load reads the optional YAML file at path, applies environment overrides, fills defaults and validates.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if p := strings.TrimSpace(path); p != "" {
		data, err := os.ReadFile(p)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", p, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", p, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func firstEnv(lookup lookupFunc, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := firstEnv(lookup, "PUBLISH_USERNAME", "INSTAGRAM_USERNAME", "IG_USERNAME"); ok {
		cfg.Username = v
	}
	if v, ok := firstEnv(lookup, "PUBLISH_PASSWORD", "INSTAGRAM_PASSWORD", "IG_PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := firstEnv(lookup, "PROMPT"); ok {
		cfg.Prompt = v
	}
	if v, ok := firstEnv(lookup, "CAPTION_MODE"); ok {
		cfg.CaptionMode = strings.ToLower(v)
	}
	if v, ok := firstEnv(lookup, "CAPTIONS"); ok {
		cfg.Captions = splitList(v, "|")
	}
	if v, ok := firstEnv(lookup, "GENERATOR"); ok {
		cfg.Generate.Kind = strings.ToLower(v)
	}
	if v, ok := firstEnv(lookup, "DRIVER_COMMAND"); ok {
		cfg.Generate.DriverCommand = strings.Fields(v)
	}
	if v, ok := firstEnv(lookup, "PROFILE_DIR"); ok {
		cfg.Generate.ProfileDir = v
	}
	if v, ok := firstEnv(lookup, "GENERATION_URL"); ok {
		cfg.Generate.BaseURL = v
	}
	if v, ok := firstEnv(lookup, "GENERATION_API_TOKEN"); ok {
		cfg.Generate.APIToken = v
	}
	if v, ok := firstEnv(lookup, "PUBLISH_URL"); ok {
		cfg.Publish.BaseURL = v
	}
	if v, ok := firstEnv(lookup, "SESSION_FILE"); ok {
		cfg.Publish.SessionCachePath = v
	}
	if v, ok := firstEnv(lookup, "REDIS_URL"); ok {
		cfg.Publish.RedisURL = v
	}
	if v, ok := firstEnv(lookup, "DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := firstEnv(lookup, "LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := firstEnv(lookup, "TIMEZONE"); ok {
		cfg.Schedule.Timezone = v
	}

	var err error
	setBool := func(name string, dst *bool) {
		if v, ok := firstEnv(lookup, name); ok && err == nil {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", name, perr)
				return
			}
			*dst = b
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := firstEnv(lookup, name); ok && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", name, perr)
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v, ok := firstEnv(lookup, name); ok && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", name, perr)
				return
			}
			*dst = d
		}
	}

	setBool("HEADLESS", &cfg.Generate.Headless)
	setBool("KEEP_ARTIFACTS", &cfg.KeepArtifacts)
	setBool("DEBUG", &cfg.Debug)
	setInt("POST_COUNT", &cfg.Schedule.PostCount)
	setInt("WINDOW_START", &cfg.Schedule.WindowStart)
	setInt("WINDOW_END", &cfg.Schedule.WindowEnd)
	setInt("CROP_BOTTOM", &cfg.Image.StripBottomPx)
	setInt("TARGET_SIDE", &cfg.Image.TargetSide)
	setDuration("POLL_INTERVAL", &cfg.Schedule.PollInterval)
	setDuration("MISSED_SLOT_GRACE", &cfg.Schedule.MissedSlotGrace)
	setDuration("WAIT_BUDGET", &cfg.Generate.WaitBudget)
	setDuration("ACQUIRE_DEADLINE", &cfg.Generate.AcquireDeadline)
	return err
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
