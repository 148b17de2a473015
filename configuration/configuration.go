package configuration

import (
	"fmt"
	"io"
	"io/ioutil"
	"reflect"
	"strings"
	"time"

	"github.com/elephant-xyz/property-dag/cids"
)

// Configuration is a versioned batch configuration, intended to be provided
// by a yaml file, and optionally modified by environment variables.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version Version `yaml:"version"`

	// Loglevel is the level at which batch operations are logged.
	Loglevel Loglevel `yaml:"loglevel"`

	// Pipeline configures per-file task scheduling.
	Pipeline Pipeline `yaml:"pipeline"`

	// Property configures property identity resolution.
	Property Property `yaml:"property"`
}

// Pipeline holds the task scheduling knobs for one batch run.
type Pipeline struct {
	// Concurrency bounds parallel per-file work. Zero selects the platform
	// default.
	Concurrency int `yaml:"concurrency"`

	// TaskRetries is the number of additional attempts granted to a failed
	// per-file task.
	TaskRetries int `yaml:"taskretries"`

	// TaskTimeout bounds a single task attempt. Zero disables the deadline.
	TaskTimeout time.Duration `yaml:"tasktimeout"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface, rejecting
// negative scheduling values.
func (pipeline *Pipeline) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Pipeline
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative: %d", p.Concurrency)
	}
	if p.TaskRetries < 0 {
		return fmt.Errorf("taskretries must not be negative: %d", p.TaskRetries)
	}
	if p.TaskTimeout < 0 {
		return fmt.Errorf("tasktimeout must not be negative: %v", p.TaskTimeout)
	}
	*pipeline = Pipeline(p)
	return nil
}

// Property holds the identity knobs for one batch run.
type Property struct {
	// CID overrides the seed-derived property identifier.
	CID string `yaml:"cid"`

	// MediaSuffix names the shared media directory. Empty selects the
	// default.
	MediaSuffix string `yaml:"mediasuffix"`

	// VerifyConvergence asserts the two-pass fixed point on every run.
	VerifyConvergence bool `yaml:"verifyconvergence"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface, validating that a
// supplied override is a well-formed CID.
func (property *Property) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Property
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.CID != "" && !cids.IsCID(p.CID) {
		return fmt.Errorf("property cid override %q is not a valid CID", p.CID)
	}
	*property = Property(p)
	return nil
}

// v0_1Configuration is a Version 0.1 Configuration struct
// This is currently aliased to Configuration, as it is the current version
type v0_1Configuration Configuration

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a string of the form X.Y into a Version, validating that X and Y can represent uints
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	err := unmarshal(&versionString)
	if err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}

	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version that can be parsed
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged
// This can be error, warn, info, or debug
type Loglevel string

// UnmarshalYAML implements the yaml.Umarshaler interface
// Unmarshals a string into a Loglevel, lowercasing the string and validating that it represents a
// valid loglevel
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	err := unmarshal(&loglevelString)
	if err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s Must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Parse parses an input configuration yaml document into a Configuration
// struct. Environment variables may be used to override configuration
// parameters other than version, following the scheme below:
// Configuration.Abc may be replaced by the value of PROPERTYDAG_ABC,
// Configuration.Abc.Xyz may be replaced by the value of PROPERTYDAG_ABC_XYZ,
// and so forth.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := ioutil.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("propertydag", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				if v0_1, ok := c.(*v0_1Configuration); ok {
					if v0_1.Loglevel == Loglevel("") {
						v0_1.Loglevel = Loglevel("info")
					}
					return (*Configuration)(v0_1), nil
				}
				return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
			},
		},
	})

	config := new(Configuration)
	err = p.Parse(in, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
