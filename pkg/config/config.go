package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

const (
	// DefaultPath is the default path to the mirror config.
	DefaultPath = "~/.notionmirror.yaml"

	// SupportedVersion is the config version understood by this binary.
	// Config files that don't specify a version default to it.
	SupportedVersion = "v1alpha1"

	// TokenEnvKey is the environment variable holding the Notion integration
	// token. The token is never stored in the config file.
	TokenEnvKey = "NOTION_TOKEN"

	notionVersionEnvKey = "NOTION_VERSION"
	mirrorDirEnvKey     = "LOCAL_MIRROR_DIR"
	rcloneRemoteEnvKey  = "RCLONE_REMOTE"
	rcloneDestEnvKey    = "RCLONE_DEST_FOLDER"
)

// parseConfigErrTemplate is a template for when the CLI fails to parse yaml
// configuration files. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// Config describes a mirror target: where the local mirror lives, how to talk
// to the Notion API, and how rclone should reconcile the remote.
type Config struct {
	Version string `json:"version,omitempty"`

	// MirrorDir is the local mirror root. Relative paths are evaluated
	// relative to the config file's directory.
	MirrorDir string `json:"mirrorDir"`

	// LogDir holds the per-date run logs. Defaults to a `logs` directory
	// next to the mirror root.
	LogDir string `json:"logDir,omitempty"`

	// NotionVersion is the Notion-Version API header value.
	NotionVersion string `json:"notionVersion,omitempty"`

	// PageConcurrency bounds the number of in-flight fetches during the walk.
	PageConcurrency int `json:"pageConcurrency,omitempty"`

	Rclone Rclone `json:"rclone,omitempty"`

	// Token is loaded from the environment, never from the file.
	Token string `json:"-"`
}

// Rclone configures the remote reconciliation pass.
type Rclone struct {
	Exe        string `json:"exe,omitempty"`
	Remote     string `json:"remote,omitempty"`
	DestFolder string `json:"destFolder,omitempty"`

	// DriveUseTrash toggles rclone's --drive-use-trash flag. Left nil, the
	// flag isn't passed and rclone's own default applies.
	DriveUseTrash *bool `json:"driveUseTrash,omitempty"`

	// TimeoutMinutes caps the reconcile. Zero means the default.
	TimeoutMinutes int `json:"timeoutMinutes,omitempty"`
}

func (c Config) getVersion() string {
	return c.Version
}

// Timeout returns the caller-imposed deadline for the reconcile pass.
func (r Rclone) Timeout() time.Duration {
	if r.TimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(r.TimeoutMinutes) * time.Minute
}

type configInterface interface {
	getVersion() string
}

// Parse loads the mirror config from the default path, applies environment
// overrides, and fills in defaults. A missing config file isn't an error --
// the defaults mirror into `notion_mirror` under the home directory.
func Parse() (Config, error) {
	path, err := homedirExpand(DefaultPath)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}
	return ParseFromPath(path)
}

// ParseFromPath loads the mirror config from the given path.
func ParseFromPath(path string) (Config, error) {
	config := Config{Version: SupportedVersion}
	err := parseConfig(path, &config, SupportedVersion)
	switch err.(type) {
	case nil:
	case errors.FileNotFound:
		// Fall through to defaults.
	default:
		return Config{}, errors.WithContext(err, "parse")
	}

	applyEnvOverrides(&config)
	if err := applyDefaults(&config, filepath.Dir(path)); err != nil {
		return Config{}, err
	}
	return config, nil
}

// RequireToken ensures the Notion token was provided. Commands that talk to
// the API call this before doing anything else so the failure is immediate
// and actionable.
func (c Config) RequireToken() error {
	if c.Token == "" {
		return errors.NewFriendlyError("The %s environment variable isn't set.\n"+
			"Create an internal integration at https://www.notion.so/my-integrations, "+
			"share your pages with it, and export its secret as %s.",
			TokenEnvKey, TokenEnvKey)
	}
	return nil
}

// ManifestPath returns the fixed manifest location relative to the mirror root.
func (c Config) ManifestPath() string {
	return filepath.Join(c.MirrorDir, ".mirror-manifest.json")
}

// LockPath returns the advisory lock guarding the manifest.
func (c Config) LockPath() string {
	return filepath.Join(c.MirrorDir, ".mirror-manifest.lock")
}

// RemoteDest returns the rclone destination in remote:folder form.
func (c Config) RemoteDest() string {
	return strings.TrimRight(fmt.Sprintf("%s:%s", c.Rclone.Remote, c.Rclone.DestFolder), ":")
}

func applyEnvOverrides(config *Config) {
	config.Token = strings.TrimSpace(os.Getenv(TokenEnvKey))
	if v := strings.TrimSpace(os.Getenv(notionVersionEnvKey)); v != "" {
		config.NotionVersion = v
	}
	if v := strings.TrimSpace(os.Getenv(mirrorDirEnvKey)); v != "" {
		config.MirrorDir = v
	}
	if v := strings.TrimSpace(os.Getenv(rcloneRemoteEnvKey)); v != "" {
		config.Rclone.Remote = v
	}
	if v := strings.Trim(strings.TrimSpace(os.Getenv(rcloneDestEnvKey)), "/\\"); v != "" {
		config.Rclone.DestFolder = v
	}
}

func applyDefaults(config *Config, relativeTo string) error {
	if config.MirrorDir == "" {
		config.MirrorDir = "notion_mirror"
	}
	var err error
	if config.MirrorDir, err = homedirExpand(config.MirrorDir); err != nil {
		return errors.WithContext(err, "expand mirror dir")
	}
	if !filepath.IsAbs(config.MirrorDir) {
		config.MirrorDir = filepath.Join(relativeTo, config.MirrorDir)
	}

	if config.LogDir == "" {
		config.LogDir = filepath.Join(filepath.Dir(config.MirrorDir), "logs")
	} else {
		if config.LogDir, err = homedirExpand(config.LogDir); err != nil {
			return errors.WithContext(err, "expand log dir")
		}
		if !filepath.IsAbs(config.LogDir) {
			config.LogDir = filepath.Join(relativeTo, config.LogDir)
		}
	}

	if config.NotionVersion == "" {
		config.NotionVersion = "2022-06-28"
	}
	if config.PageConcurrency <= 0 {
		config.PageConcurrency = 4
	}
	if config.Rclone.Exe == "" {
		config.Rclone.Exe = "rclone"
	}
	if config.Rclone.Remote == "" {
		config.Rclone.Remote = "gdrive"
	}
	if config.Rclone.DestFolder == "" {
		config.Rclone.DestFolder = "notion"
	}
	return nil
}

func parseConfig(path string, config configInterface, expVersion string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if isPathNotFoundError(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if config.getVersion() != expVersion {
		return incompatibleVersionError{path, expVersion, config.getVersion()}
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of notionmirror.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

func isPathNotFoundError(err error) bool {
	return errors.IsNotExist(err)
}
