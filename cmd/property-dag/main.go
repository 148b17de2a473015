package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/configuration"
	"github.com/elephant-xyz/property-dag/pipeline"
	"github.com/elephant-xyz/property-dag/version"
)

const (
	binaryName      = "property-dag"
	helpMessageTmpl = `%s hashes a property directory into content identifiers.

The directory's seed document fixes the property CID through two
canonicalization passes; every other file is resolved, canonicalized and
hashed against it. The resulting manifest is written as CSV.`
)

var cmd = &cobra.Command{
	Use:   "<property-dir>",
	Short: fmt.Sprintf("%s computes property CIDs", binaryName),
	Long:  fmt.Sprintf(helpMessageTmpl, binaryName),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}

		if len(args) != 1 {
			cmd.Usage()
			os.Exit(1)
		}

		config, err := resolveConfiguration()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
		configureLogging(config)

		opts := buildOptions(config, args[0])
		manifest, err := pipeline.Run(context.Background(), opts)
		if err != nil {
			if propertydag.IsConfiguration(err) {
				fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
				os.Exit(1)
			}
			log.Fatalln(err)
		}

		out := os.Stdout
		if outputPath != "" {
			out, err = os.Create(outputPath)
			if err != nil {
				log.Fatalln(err)
			}
			defer out.Close()
		}
		if err := manifest.WriteCSV(out); err != nil {
			log.Fatalln(err)
		}

		for _, err := range pipeline.Errs(manifest) {
			log.Warnln(err)
		}
		if manifest.Errored > 0 {
			os.Exit(1)
		}
	},
}

var (
	showVersion       bool
	configPath        string
	outputPath        string
	concurrency       int
	propertyCID       string
	mediaSuffix       string
	verifyConvergence bool
	taskRetries       int
	taskTimeout       time.Duration
)

func init() {
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a yaml configuration file")
	cmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "write the manifest CSV to this path instead of stdout")
	cmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "bound on parallel per-file work (0 selects the platform default)")
	cmd.PersistentFlags().StringVar(&propertyCID, "property-cid", "", "override the seed-derived property CID")
	cmd.PersistentFlags().StringVar(&mediaSuffix, "media-suffix", "", "suffix for the shared media directory name")
	cmd.PersistentFlags().BoolVar(&verifyConvergence, "verify", false, "assert the two-pass fixed point")
	cmd.PersistentFlags().IntVar(&taskRetries, "retries", 0, "additional attempts granted to a failed per-file task")
	cmd.PersistentFlags().DurationVar(&taskTimeout, "timeout", 0, "deadline for a single task attempt (0 disables)")
	cmd.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "show the version and exit")
}

// resolveConfiguration loads the optional yaml configuration, preferring the
// --config flag over the PROPERTYDAG_CONFIGURATION_PATH environment variable.
// Absent both, flag defaults govern the run.
func resolveConfiguration() (*configuration.Configuration, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("PROPERTYDAG_CONFIGURATION_PATH")
	}
	if path == "" {
		return &configuration.Configuration{Loglevel: "info"}, nil
	}

	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", path, err)
	}
	return config, nil
}

func configureLogging(config *configuration.Configuration) {
	level, err := log.ParseLevel(string(config.Loglevel))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// buildOptions layers command line flags over the file configuration. A flag
// left at its zero value defers to the file.
func buildOptions(config *configuration.Configuration, dir string) pipeline.Options {
	opts := pipeline.Options{
		Dir:               dir,
		PropertyCID:       config.Property.CID,
		MediaSuffix:       config.Property.MediaSuffix,
		VerifyConvergence: config.Property.VerifyConvergence,
		Concurrency:       config.Pipeline.Concurrency,
		TaskRetries:       config.Pipeline.TaskRetries,
		TaskTimeout:       config.Pipeline.TaskTimeout,
	}
	if concurrency != 0 {
		opts.Concurrency = concurrency
	}
	if propertyCID != "" {
		opts.PropertyCID = propertyCID
	}
	if mediaSuffix != "" {
		opts.MediaSuffix = mediaSuffix
	}
	if verifyConvergence {
		opts.VerifyConvergence = true
	}
	if taskRetries != 0 {
		opts.TaskRetries = taskRetries
	}
	if taskTimeout != 0 {
		opts.TaskTimeout = taskTimeout
	}
	return opts
}

func main() {
	cmd.Execute()
}
