package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgconfig "github.com/starford/kbpipe/pkg/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg = AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistryConfig_Modes(t *testing.T) {
	cases := []struct {
		name    string
		cfg     RegistryConfig
		wantErr bool
	}{
		{"csv", RegistryConfig{Mode: "csv", CSVPath: "versions.csv"}, false},
		{"csv without path", RegistryConfig{Mode: "csv"}, true},
		{"snapshot", RegistryConfig{Mode: "snapshot"}, false},
		{"unknown", RegistryConfig{Mode: "git"}, true},
		{"empty", RegistryConfig{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestStagingConfig_RejectsBlankCategory(t *testing.T) {
	cfg := StagingConfig{Categories: []string{"Linux", ""}, PublishFile: "staging/publish.txt"}
	if err := cfg.Validate(); err == nil {
		t.Error("blank category should fail validation")
	}
}

func TestRepositoryConfig_Path(t *testing.T) {
	r := RepositoryConfig{Root: "/srv/kb"}
	if got := r.Path("staging"); got != filepath.Join("/srv/kb", "staging") {
		t.Errorf("relative = %q", got)
	}
	if got := r.Path("/tmp/deploy"); got != "/tmp/deploy" {
		t.Errorf("absolute = %q", got)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "none.yaml"), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Registry.Mode != "csv" || len(cfg.Staging.Categories) != 3 {
		t.Errorf("defaults changed: %+v", cfg)
	}
}

func TestLoadOptional_OverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("KBPIPE_TEST_ROOT", "/data/kb")
	file := filepath.Join(t.TempDir(), "kbpipe.yaml")
	content := "repository:\n  root: ${KBPIPE_TEST_ROOT}\nregistry:\n  mode: snapshot\nstaging:\n  categories: [Linux]\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(file, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Repository.Root != "/data/kb" || cfg.Registry.Mode != "snapshot" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Repository.StagingDir != "staging" {
		t.Errorf("unset fields should keep defaults, staging_dir = %q", cfg.Repository.StagingDir)
	}
	if len(cfg.Staging.Categories) != 1 {
		t.Errorf("categories = %v", cfg.Staging.Categories)
	}
}

func TestLoadOptional_InvalidFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "kbpipe.yaml")
	_ = os.WriteFile(file, []byte("registry:\n  mode: git\n"), 0o644)
	if err := pkgconfig.LoadOptional(file, NewDefaultConfig()); err == nil {
		t.Error("invalid registry mode should fail")
	}
}
