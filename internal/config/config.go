// Package config loads peersync configuration files.
//
// A configuration file is YAML. It names the databases a server exposes and
// the replications a node runs:
//
//	listen: 127.0.0.1:4984
//	poll_interval: 2s
//	databases:
//	  notes: ./notes.db
//	replications:
//	  - name: notes-up
//	    db: ./notes.db
//	    url: ws://sync.example.com:4984/notes
//	    push: continuous
//
// Loading decodes the YAML strictly, validates it against an embedded CUE
// schema and then checks the cross-field rules the schema cannot express.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/status"
)

//go:embed schema.cue
var schemaSource string

// File is a decoded configuration file.
type File struct {
	// Listen is the host:port a server binds. Empty means no server.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// PollInterval is the default interval between continuous rounds.
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// Databases maps served database names to file paths.
	Databases map[string]string `yaml:"databases,omitempty" json:"databases,omitempty"`

	Replications []Replication `yaml:"replications,omitempty" json:"replications,omitempty"`
}

// Replication describes one replicator to start.
type Replication struct {
	Name         string `yaml:"name" json:"name"`
	DB           string `yaml:"db" json:"db"`
	URL          string `yaml:"url,omitempty" json:"url,omitempty"`
	OtherDB      string `yaml:"other_db,omitempty" json:"other_db,omitempty"`
	Push         string `yaml:"push,omitempty" json:"push,omitempty"`
	Pull         string `yaml:"pull,omitempty" json:"pull,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
}

// Error codes reported by LoadError.
const (
	ErrCodeRead   = "C001" // file could not be read
	ErrCodeParse  = "C002" // YAML syntax or unknown field
	ErrCodeSchema = "C003" // CUE schema violation
	ErrCodeRule   = "C004" // cross-field rule violation
)

// LoadError reports why a configuration file was rejected.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsSchemaError reports whether err is a schema violation.
func IsSchemaError(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == ErrCodeSchema
}

// IsRuleError reports whether err is a cross-field rule violation.
func IsRuleError(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == ErrCodeRule
}

// Load reads and validates the file at path. Relative database paths are
// resolved against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Path: path, Message: "failed to read config file", Err: err}
	}
	f, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	f.resolvePaths(filepath.Dir(path))
	return f, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("failed to parse YAML: %v", err), Err: err}
	}
	if err := validateSchema(&f); err != nil {
		return nil, err
	}
	if err := validateRules(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func validateSchema(f *File) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("embedded schema: %v", err), Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(f)
	if err := doc.Err(); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: err.Error(), Err: err}
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: err.Error(), Err: err}
	}
	return nil
}

func validateRules(f *File) error {
	if _, err := f.Interval(0); err != nil {
		return ruleError("poll_interval", err.Error())
	}

	names := make([]string, 0, len(f.Databases))
	for name := range f.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !address.IsValidDatabaseName(name) {
			return ruleError("databases", fmt.Sprintf("invalid database name %q", name))
		}
	}

	seen := make(map[string]bool, len(f.Replications))
	for i, r := range f.Replications {
		where := fmt.Sprintf("replications[%d]", i)
		if seen[r.Name] {
			return ruleError(where, fmt.Sprintf("duplicate replication name %q", r.Name))
		}
		seen[r.Name] = true

		if (r.URL == "") == (r.OtherDB == "") {
			return ruleError(where, "exactly one of url and other_db must be set")
		}
		if r.URL != "" {
			if _, _, err := address.ParseURL(r.URL); err != nil {
				return ruleError(where, err.Error())
			}
		}
		push, pull, err := r.Modes()
		if err != nil {
			return ruleError(where, err.Error())
		}
		if push == status.Disabled && pull == status.Disabled {
			return ruleError(where, "push and pull are both disabled")
		}
		if _, err := r.Interval(0); err != nil {
			return ruleError(where, err.Error())
		}
	}
	return nil
}

func ruleError(where, msg string) error {
	return &LoadError{Code: ErrCodeRule, Message: where + ": " + msg}
}

func (f *File) resolvePaths(base string) {
	for name, p := range f.Databases {
		f.Databases[name] = resolve(base, p)
	}
	for i := range f.Replications {
		r := &f.Replications[i]
		r.DB = resolve(base, r.DB)
		if r.OtherDB != "" {
			r.OtherDB = resolve(base, r.OtherDB)
		}
	}
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// Interval returns the file's poll interval, or def when unset.
func (f *File) Interval(def time.Duration) (time.Duration, error) {
	return parseInterval(f.PollInterval, def)
}

// Modes returns the parsed push and pull modes. Empty means disabled.
func (r Replication) Modes() (push, pull status.Mode, err error) {
	if r.Push != "" {
		if push, err = status.ParseMode(r.Push); err != nil {
			return status.Disabled, status.Disabled, fmt.Errorf("push: %w", err)
		}
	}
	if r.Pull != "" {
		if pull, err = status.ParseMode(r.Pull); err != nil {
			return status.Disabled, status.Disabled, fmt.Errorf("pull: %w", err)
		}
	}
	return push, pull, nil
}

// Interval returns the replication's poll interval, or def when unset.
func (r Replication) Interval(def time.Duration) (time.Duration, error) {
	return parseInterval(r.PollInterval, def)
}

func parseInterval(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll interval must be positive, got %s", s)
	}
	return d, nil
}
