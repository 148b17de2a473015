package configuration

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/elephant-xyz/property-dag/cids"
)

var configYamlV0_1 = `
version: 0.1
loglevel: debug
pipeline:
  concurrency: 8
  taskretries: 2
  tasktimeout: 30s
property:
  mediasuffix: _media
  verifyconvergence: true
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "PROPERTYDAG_") {
			name := strings.SplitN(env, "=", 2)[0]
			val := os.Getenv(name)
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, val) })
		}
	}
}

func TestParseSimple(t *testing.T) {
	clearEnv(t)
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Version != MajorMinorVersion(0, 1) {
		t.Fatalf("version %s, want 0.1", config.Version)
	}
	if config.Loglevel != Loglevel("debug") {
		t.Fatalf("loglevel %s, want debug", config.Loglevel)
	}
	if config.Pipeline.Concurrency != 8 {
		t.Fatalf("concurrency %d, want 8", config.Pipeline.Concurrency)
	}
	if config.Pipeline.TaskTimeout != 30*time.Second {
		t.Fatalf("tasktimeout %v, want 30s", config.Pipeline.TaskTimeout)
	}
	if !config.Property.VerifyConvergence {
		t.Fatal("verifyconvergence lost")
	}
}

func TestParseDefaultLoglevel(t *testing.T) {
	clearEnv(t)
	config, err := Parse(bytes.NewReader([]byte("version: 0.1\n")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Loglevel != Loglevel("info") {
		t.Fatalf("default loglevel %s, want info", config.Loglevel)
	}
}

func TestParseInvalidVersion(t *testing.T) {
	clearEnv(t)
	if _, err := Parse(bytes.NewReader([]byte("version: 7.9\n"))); err == nil {
		t.Fatal("expected unsupported version error")
	}
}

func TestParseInvalidLoglevel(t *testing.T) {
	clearEnv(t)
	in := "version: 0.1\nloglevel: derp\n"
	if _, err := Parse(bytes.NewReader([]byte(in))); err == nil {
		t.Fatal("expected invalid loglevel error")
	}
}

func TestParseInvalidPropertyCID(t *testing.T) {
	clearEnv(t)
	in := "version: 0.1\nproperty:\n  cid: not-a-cid\n"
	if _, err := Parse(bytes.NewReader([]byte(in))); err == nil {
		t.Fatal("expected invalid cid error")
	}
}

func TestParseValidPropertyCID(t *testing.T) {
	clearEnv(t)
	c, err := cids.RawV1([]byte("identity"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := "version: 0.1\nproperty:\n  cid: " + c.String() + "\n"
	config, err := Parse(bytes.NewReader([]byte(in)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Property.CID != c.String() {
		t.Fatalf("property cid %q, want %q", config.Property.CID, c)
	}
}

func TestParseNegativeConcurrency(t *testing.T) {
	clearEnv(t)
	in := "version: 0.1\npipeline:\n  concurrency: -1\n"
	if _, err := Parse(bytes.NewReader([]byte(in))); err == nil {
		t.Fatal("expected negative concurrency error")
	}
}

func TestParseEnvironmentOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("PROPERTYDAG_LOGLEVEL", "error")
	os.Setenv("PROPERTYDAG_PIPELINE_CONCURRENCY", "3")
	defer os.Unsetenv("PROPERTYDAG_LOGLEVEL")
	defer os.Unsetenv("PROPERTYDAG_PIPELINE_CONCURRENCY")

	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Loglevel != Loglevel("error") {
		t.Fatalf("loglevel %s, want env override error", config.Loglevel)
	}
	if config.Pipeline.Concurrency != 3 {
		t.Fatalf("concurrency %d, want env override 3", config.Pipeline.Concurrency)
	}
}
