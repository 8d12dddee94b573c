package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration (defaults, config file and environment
combined) as YAML. With --defaults only the built-in defaults are shown,
which makes a starting point for a config file:

  loopcast config dump --defaults > config.yaml

Environment variables use the LOOPCAST_ prefix and underscores for nesting.
Example: streaming.max_retries -> LOOPCAST_STREAMING_MAX_RETRIES`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Loading already validated it.
		fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd, configValidateCmd)
	configDumpCmd.Flags().Bool("defaults", false, "show built-in defaults only")
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	c := cfg
	if defaults, _ := cmd.Flags().GetBool("defaults"); defaults {
		var err error
		if c, err = config.Defaults(); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	data, err := yaml.Marshal(configMap(c))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# loopcast configuration")
	fmt.Fprintln(out, "# Durations accept 30s, 5m, 1h30m, 1d.")
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

// configMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations the way they are written in config files.
func configMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := range val.NumField() {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(fv)
		case config.Duration:
			result[key] = duration.Format(fv.Duration())
		default:
			if field.Kind() == reflect.Struct {
				result[key] = configMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}
