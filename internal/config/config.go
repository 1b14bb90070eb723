package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDeviceRoot     = "/Zotero"
	DefaultDeviceBinary   = "rmapi"
	DefaultLibraryAPIURL  = "https://api.zotero.org"
	DefaultLibraryType    = "user"
	DefaultRendererBinary = "remarks"
	DefaultLogLevel       = "info"
	DefaultJournalName    = "journal.db"

	DefaultRetryMaxAttempts = 3
	DefaultRetryDelay       = 5 * time.Second

	configFileName = ".paperbridge.toml"

	configPathEnvKey     = "PAPERBRIDGE_CONFIG"
	libraryAPIKeyEnvKey  = "PAPERBRIDGE_LIBRARY_API_KEY"
	webdavPasswordEnvKey = "PAPERBRIDGE_WEBDAV_PASSWORD"
	workDirEnvKey        = "PAPERBRIDGE_WORK_DIR"
)

// DeviceConfig selects the device bridge binary and the root folder on the device.
type DeviceConfig struct {
	Binary string `toml:"binary" yaml:"binary"`
	Root   string `toml:"root" yaml:"root"`
}

// LibraryConfig holds the hosted library API location and credentials.
type LibraryConfig struct {
	APIURL      string `toml:"api_url" yaml:"api_url"`
	LibraryID   string `toml:"library_id" yaml:"library_id"`
	LibraryType string `toml:"library_type" yaml:"library_type"`
	APIKey      string `toml:"api_key" yaml:"api_key"`
}

// WebDAVConfig enables the remote-file-store path when URL is set.
type WebDAVConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
}

// RendererConfig describes the external annotation renderer command.
type RendererConfig struct {
	Command string   `toml:"command" yaml:"command"`
	Args    []string `toml:"args" yaml:"args"`
}

// RetryConfig tunes the remote-file-store transfer retrier.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" yaml:"max_attempts"`
	Delay       Duration `toml:"delay" yaml:"delay"`
}

// Config defines runtime configuration for paperbridge.
type Config struct {
	UnreadFolder string         `toml:"unread_folder" yaml:"unread_folder"`
	ReadFolder   string         `toml:"read_folder" yaml:"read_folder"`
	Device       DeviceConfig   `toml:"device" yaml:"device"`
	Library      LibraryConfig  `toml:"library" yaml:"library"`
	WebDAV       WebDAVConfig   `toml:"webdav" yaml:"webdav"`
	Renderer     RendererConfig `toml:"renderer" yaml:"renderer"`
	Retry        RetryConfig    `toml:"retry" yaml:"retry"`
	WorkDir      string         `toml:"work_dir" yaml:"work_dir"`
	JournalPath  string         `toml:"journal_path" yaml:"journal_path"`
	LogLevel     string         `toml:"log_level" yaml:"log_level"`
	LogFile      string         `toml:"log_file" yaml:"log_file"`

	Path string `toml:"-" yaml:"-"`
}

// Duration is a time.Duration that decodes from "5s" or a plain number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalTOML accepts both delay = "5s" and delay = 5.
func (d *Duration) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int64:
		return d.UnmarshalText([]byte(strconv.FormatInt(v, 10)))
	default:
		return fmt.Errorf("invalid duration value %v", value)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts both "5s" and 5.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func parseDuration(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("duration must not be negative: %s", raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", raw)
	}
	return parsed, nil
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Binary: DefaultDeviceBinary,
			Root:   DefaultDeviceRoot,
		},
		Library: LibraryConfig{
			APIURL:      DefaultLibraryAPIURL,
			LibraryType: DefaultLibraryType,
		},
		Renderer: RendererConfig{
			Command: DefaultRendererBinary,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			Delay:       Duration{DefaultRetryDelay},
		},
		LogLevel: DefaultLogLevel,
	}
}

// RemoteStoreEnabled reports whether attachment bodies travel through WebDAV.
func (c *Config) RemoteStoreEnabled() bool {
	return strings.TrimSpace(c.WebDAV.URL) != ""
}

// UnreadPath is the device folder that receives pushed documents.
func (c *Config) UnreadPath() string {
	return devicePath(c.Device.Root, c.UnreadFolder)
}

// ReadPath is the device folder scanned for annotated documents.
func (c *Config) ReadPath() string {
	return devicePath(c.Device.Root, c.ReadFolder)
}

func devicePath(root, folder string) string {
	root = "/" + strings.Trim(strings.TrimSpace(root), "/")
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if root == "/" {
		return "/" + folder
	}
	return root + "/" + folder
}

// ErrMissingRequired is wrapped by Validate when required fields are unset.
var ErrMissingRequired = errors.New("missing required config")

// Validate reports every missing required field in one error.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.UnreadFolder) == "" {
		missing = append(missing, "unread_folder")
	}
	if strings.TrimSpace(c.ReadFolder) == "" {
		missing = append(missing, "read_folder")
	}
	missing = append(missing, c.missingLibrary()...)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	if err := c.validateLibraryType(); err != nil {
		return err
	}
	if c.RemoteStoreEnabled() && strings.TrimSpace(c.WebDAV.Username) == "" {
		return fmt.Errorf("webdav.username is required when webdav.url is set")
	}
	return nil
}

// ValidateLibrary checks only the fields needed to talk to the library.
func (c *Config) ValidateLibrary() error {
	if missing := c.missingLibrary(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return c.validateLibraryType()
}

func (c *Config) missingLibrary() []string {
	var missing []string
	if strings.TrimSpace(c.Library.LibraryID) == "" {
		missing = append(missing, "library.library_id")
	}
	if strings.TrimSpace(c.Library.APIKey) == "" {
		missing = append(missing, "library.api_key")
	}
	return missing
}

func (c *Config) validateLibraryType() error {
	switch c.Library.LibraryType {
	case "user", "group":
		return nil
	}
	return fmt.Errorf("library.library_type must be user or group, got %q", c.Library.LibraryType)
}

// ResolvedJournalPath returns journal_path, or journal.db in the state directory.
func (c *Config) ResolvedJournalPath() (string, error) {
	if path := strings.TrimSpace(c.JournalPath); path != "" {
		return path, nil
	}
	dir, err := DefaultStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultJournalName), nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return false, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		return true, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

var allowedKeys = []string{
	"unread_folder",
	"read_folder",
	"device.binary",
	"device.root",
	"library.api_url",
	"library.library_id",
	"library.library_type",
	"library.api_key",
	"webdav.url",
	"webdav.username",
	"webdav.password",
	"renderer.command",
	"renderer.args",
	"retry.max_attempts",
	"retry.delay",
	"work_dir",
	"journal_path",
	"log_level",
	"log_file",
}

var secretKeys = map[string]struct{}{
	"library.api_key": {},
	"webdav.password": {},
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsSecretKey reports whether values of key must not be echoed.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[key]
	return ok
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "unread_folder":
		return c.UnreadFolder, nil
	case "read_folder":
		return c.ReadFolder, nil
	case "device.binary":
		return c.Device.Binary, nil
	case "device.root":
		return c.Device.Root, nil
	case "library.api_url":
		return c.Library.APIURL, nil
	case "library.library_id":
		return c.Library.LibraryID, nil
	case "library.library_type":
		return c.Library.LibraryType, nil
	case "library.api_key":
		return c.Library.APIKey, nil
	case "webdav.url":
		return c.WebDAV.URL, nil
	case "webdav.username":
		return c.WebDAV.Username, nil
	case "webdav.password":
		return c.WebDAV.Password, nil
	case "renderer.command":
		return c.Renderer.Command, nil
	case "renderer.args":
		return strings.Join(c.Renderer.Args, ","), nil
	case "retry.max_attempts":
		return strconv.Itoa(c.Retry.MaxAttempts), nil
	case "retry.delay":
		return c.Retry.Delay.String(), nil
	case "work_dir":
		return c.WorkDir, nil
	case "journal_path":
		return c.JournalPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_file":
		return c.LogFile, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// DefaultPath returns the path of the config file used when none is given.
func DefaultPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(configPathEnvKey)); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// DefaultStateDir returns the directory holding the journal when journal_path is unset.
func DefaultStateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "paperbridge"), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}
	if isYAML(path) {
		return fmt.Errorf("cannot write legacy YAML config %s; use a .toml file", path)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	return writeTOML(path, data)
}

// WriteTemplate writes a starter config to path. It refuses to overwrite.
func WriteTemplate(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return writeTOML(path, cfg)
}

func writeTOML(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(payload)
}

// Load reads config from path (or the default location) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	loaded, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.Path = path
	}

	if key := strings.TrimSpace(os.Getenv(libraryAPIKeyEnvKey)); key != "" {
		cfg.Library.APIKey = key
	}
	if password := os.Getenv(webdavPasswordEnvKey); password != "" {
		cfg.WebDAV.Password = password
	}
	if dir := strings.TrimSpace(os.Getenv(workDirEnvKey)); dir != "" {
		cfg.WorkDir = dir
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "retry.max_attempts":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "retry.delay":
		parsed, err := parseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 5s", key)
		}
		return parsed.String(), nil
	case "library.library_type":
		if value != "user" && value != "group" {
			return nil, fmt.Errorf("%s must be user or group", key)
		}
		return value, nil
	case "log_level":
		return strings.ToLower(value), nil
	case "renderer.args":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.Device.Binary) == "" {
		c.Device.Binary = DefaultDeviceBinary
	}
	if strings.TrimSpace(c.Device.Root) == "" {
		c.Device.Root = DefaultDeviceRoot
	}
	if strings.TrimSpace(c.Library.APIURL) == "" {
		c.Library.APIURL = DefaultLibraryAPIURL
	}
	c.Library.LibraryType = strings.ToLower(strings.TrimSpace(c.Library.LibraryType))
	if c.Library.LibraryType == "" {
		c.Library.LibraryType = DefaultLibraryType
	}
	if strings.TrimSpace(c.Renderer.Command) == "" {
		c.Renderer.Command = DefaultRendererBinary
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Retry.Delay.Duration <= 0 {
		c.Retry.Delay = Duration{DefaultRetryDelay}
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Renderer.Args = normalizeArgs(c.Renderer.Args)
}

func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		out = append(out, arg)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

