package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It
// returns every problem found (empty if valid) so an operator can fix
// a config in one pass.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	d := cfg.Deploy

	if d.Service == "" {
		errs = append(errs, ValidationError{Field: "deploy.service", Message: "is required"})
	}
	if d.Repo.Dir == "" {
		errs = append(errs, ValidationError{Field: "deploy.repo.dir", Message: "is required"})
	}

	// Every command must be a non-empty argv list.
	for _, cmd := range []struct {
		field string
		argv  []string
	}{
		{"deploy.supervisor.stop", d.Supervisor.Stop},
		{"deploy.supervisor.restart", d.Supervisor.Restart},
		{"deploy.repo.fetch", d.Repo.Fetch},
		{"deploy.repo.reset", d.Repo.Reset},
		{"deploy.frontend.install", d.Frontend.Install},
		{"deploy.frontend.build", d.Frontend.Build},
		{"deploy.backend.install", d.Backend.Install},
		{"deploy.backend.build", d.Backend.Build},
		{"deploy.migrations.run", d.Migrations.Run},
		{"deploy.migrations.list", d.Migrations.List},
	} {
		if len(cmd.argv) == 0 {
			errs = append(errs, ValidationError{Field: cmd.field, Message: "is required (argv list)"})
			continue
		}
		if cmd.argv[0] == "" {
			errs = append(errs, ValidationError{Field: cmd.field, Message: "first argv token (the binary) is empty"})
		}
	}

	for _, proj := range []struct {
		field string
		dir   string
	}{
		{"deploy.frontend.dir", d.Frontend.Dir},
		{"deploy.backend.dir", d.Backend.Dir},
	} {
		if proj.dir == "" {
			errs = append(errs, ValidationError{Field: proj.field, Message: "is required"})
		}
	}

	if d.Assets.SourceDir == "" {
		errs = append(errs, ValidationError{Field: "deploy.assets.source_dir", Message: "is required"})
	}
	if d.Assets.DestDir == "" {
		errs = append(errs, ValidationError{Field: "deploy.assets.dest_dir", Message: "is required"})
	}

	if d.Migrations.MinCompleted != nil && *d.Migrations.MinCompleted < 0 {
		errs = append(errs, ValidationError{Field: "deploy.migrations.min_completed", Message: "must be >= 0"})
	}
	if d.Migrations.Marker == "" && d.Migrations.Require == "" {
		errs = append(errs, ValidationError{
			Field:   "deploy.migrations.marker",
			Message: "marker (or require) is needed for the validation gate",
		})
	}

	if d.Keys.Dir != "" && d.Keys.KeyFile == "" {
		errs = append(errs, ValidationError{Field: "deploy.keys.key_file", Message: "is required when keys.dir is set"})
	}
	if _, err := d.Keys.ParsedDirMode(); err != nil {
		errs = append(errs, ValidationError{Field: "deploy.keys.dir_mode", Message: "must be an octal mode like 750"})
	}
	if _, err := d.Keys.ParsedFileMode(); err != nil {
		errs = append(errs, ValidationError{Field: "deploy.keys.file_mode", Message: "must be an octal mode like 600"})
	}

	for _, parsed := range []struct {
		field string
		check func() error
	}{
		{"deploy.step_timeout", func() error { _, err := d.ParsedStepTimeout(); return err }},
		{"deploy.lock_wait", func() error { _, err := d.ParsedLockWait(); return err }},
		{"deploy.smoke.timeout", func() error { _, err := d.Smoke.ParsedTimeout(); return err }},
	} {
		if err := parsed.check(); err != nil {
			errs = append(errs, ValidationError{Field: parsed.field, Message: "must be a duration like 30s or 10m"})
		}
	}

	if d.Smoke.Enabled && len(d.Smoke.Probes) == 0 {
		errs = append(errs, ValidationError{Field: "deploy.smoke.probes", Message: "at least one probe is required when smoke is enabled"})
	}
	for i, p := range d.Smoke.Probes {
		prefix := fmt.Sprintf("deploy.smoke.probes[%d]", i)
		if p.Host == "" {
			errs = append(errs, ValidationError{Field: prefix + ".host", Message: "is required"})
		}
		if p.Port < 1 || p.Port > 65535 {
			errs = append(errs, ValidationError{Field: prefix + ".port", Message: "must be between 1 and 65535"})
		}
	}

	return errs
}
