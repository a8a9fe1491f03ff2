package config

// Config is the top-level deployment configuration parsed from YAML.
type Config struct {
	Deploy Deploy `yaml:"deploy"`
}

// Deploy describes one deployment target end to end: which service to
// bounce, where the code lives, how to build it, and how to judge the
// migration run.
type Deploy struct {
	// Target names the deployment target; it keys the run lock and
	// the journal. Defaults to "default".
	Target  string `yaml:"target"`
	Service string `yaml:"service"`

	// StateDir overrides ~/.redeploy for runs, locks, and the journal.
	StateDir string `yaml:"state_dir"`

	// StepTimeout bounds each step's external command (e.g. "10m").
	// Empty or "0" disables the bound, which matches the historical
	// behavior of the shell pipeline.
	StepTimeout string `yaml:"step_timeout"`

	// LockWait is how long a run waits for the target lock before
	// giving up (e.g. "30s").
	LockWait string `yaml:"lock_wait"`

	Supervisor Supervisor `yaml:"supervisor"`
	Repo       Repo       `yaml:"repo"`
	Frontend   Project    `yaml:"frontend"`
	Backend    Project    `yaml:"backend"`
	Assets     Assets     `yaml:"assets"`
	Migrations Migrations `yaml:"migrations"`
	Keys       Keys       `yaml:"keys"`
	Smoke      Smoke      `yaml:"smoke"`
}

// Supervisor holds the process-supervisor control commands as argv
// lists. Commands are exec'd directly, never through a shell.
type Supervisor struct {
	Stop    []string `yaml:"stop"`
	Restart []string `yaml:"restart"`
	Save    []string `yaml:"save"`
}

// Repo describes the checkout to update.
type Repo struct {
	Dir   string   `yaml:"dir"`
	Fetch []string `yaml:"fetch"`
	Reset []string `yaml:"reset"`
}

// Project is one buildable sub-project (frontend or backend).
type Project struct {
	Dir     string   `yaml:"dir"`
	Install []string `yaml:"install"`
	Build   []string `yaml:"build"`
}

// Assets maps the frontend build output to the serving directory.
type Assets struct {
	SourceDir string `yaml:"source_dir"`
	DestDir   string `yaml:"dest_dir"`
}

// Migrations configures the migration run and its validation gate.
type Migrations struct {
	Dir string `yaml:"dir"`
	// Run applies pending migrations; tolerated on nonzero exit
	// because some runners exit nonzero for "no new migrations".
	Run []string `yaml:"run"`
	// List prints completed migrations; the gate counts Marker lines
	// in its output.
	List []string `yaml:"list"`

	MinCompleted *int   `yaml:"min_completed"`
	Marker       string `yaml:"marker"`
	// Require optionally names a migration that must appear in the
	// listing, e.g. the newest one this release depends on.
	Require string `yaml:"require"`
}

// Keys configures the signing-key permission repair.
type Keys struct {
	Dir      string `yaml:"dir"`
	KeyFile  string `yaml:"key_file"`
	Owner    string `yaml:"owner"`
	Group    string `yaml:"group"`
	DirMode  string `yaml:"dir_mode"`  // octal, e.g. "750"
	FileMode string `yaml:"file_mode"` // octal, e.g. "600"
	Required bool   `yaml:"required"`
}

// Smoke configures optional post-restart reachability probes.
type Smoke struct {
	Enabled bool    `yaml:"enabled"`
	Timeout string  `yaml:"timeout"`
	Probes  []Probe `yaml:"probes"`
}

// Probe is one smoke-test target.
type Probe struct {
	Name   string `yaml:"name"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Banner bool   `yaml:"banner"`
}
