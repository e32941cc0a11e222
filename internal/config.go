package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kbpipe/internal/registry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Repository RepositoryConfig  `yaml:"repository"`
	Staging    StagingConfig     `yaml:"staging"`
	Registry   RegistryConfig    `yaml:"registry"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.Staging.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RepositoryConfig locates the pipeline directories. Relative entries are
// resolved against Root.
type RepositoryConfig struct {
	Root        string `yaml:"root"`
	StagingDir  string `yaml:"staging_dir"`
	ArticlesDir string `yaml:"articles_dir"`
	VersionsDir string `yaml:"versions_dir"`
	DeployDir   string `yaml:"deploy_dir"`
	VersionFile string `yaml:"version_file"`
	LockFile    string `yaml:"lock_file"`
}

// Validate validates the repository configuration.
func (c *RepositoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.StagingDir, validation.Required),
		validation.Field(&c.ArticlesDir, validation.Required),
		validation.Field(&c.VersionsDir, validation.Required),
		validation.Field(&c.DeployDir, validation.Required),
		validation.Field(&c.VersionFile, validation.Required),
	)
}

// Path resolves p against the repository root.
func (c *RepositoryConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// StagingConfig describes the staging area layout.
type StagingConfig struct {
	// Categories restricts the scan to <staging>/<category>/. Empty means
	// the whole staging tree.
	Categories  []string `yaml:"categories"`
	PublishFile string   `yaml:"publish_file"`
}

// Validate validates the staging configuration.
func (c *StagingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PublishFile, validation.Required),
		validation.Field(&c.Categories, validation.Each(validation.Required)),
	)
}

// RegistryConfig selects the version registry design.
type RegistryConfig struct {
	Mode          string `yaml:"mode"`
	CSVPath       string `yaml:"csv_path"`
	ChangelogPath string `yaml:"changelog_path"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(registry.ModeCSV, registry.ModeSnapshot)),
		validation.Field(&c.CSVPath, validation.When(c.Mode == registry.ModeCSV, validation.Required)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Repository: RepositoryConfig{
			Root:        ".",
			StagingDir:  "staging",
			ArticlesDir: "articles",
			VersionsDir: "versions",
			DeployDir:   "deploy",
			VersionFile: "VERSION",
			LockFile:    ".kbpipe.lock",
		},
		Staging: StagingConfig{
			Categories:  []string{"Linux", "工具", "开发"},
			PublishFile: "staging/publish.txt",
		},
		Registry: RegistryConfig{
			Mode:          registry.ModeCSV,
			CSVPath:       "versions.csv",
			ChangelogPath: "versions.md",
		},
		SQLite: SQLiteConfig{
			Path: ".kbpipe/index.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
