package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"github.com/bl4ck0w1/secretlynx/internal/validation/content_analysis"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage SecretLynx configuration",
		Long: `Create, inspect and edit the YAML configuration file. Without --config
the file lives at $HOME/.secretlynx/config.yaml.`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureSetCommand())
	cmd.AddCommand(newConfigureGetCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE:  runConfigureInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file without asking")
	return cmd
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after the file, environment and flags are applied. The API key is masked.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigureShow,
	}
}

func newConfigureSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a value in the configuration file using a dotted key
(e.g. "scanner.active_probes"). Values are parsed as:
- booleans: true/false
- integers/floats: 10, 3.14
- durations (for keys containing timeout|ttl|retention): "30s", "10m"
- anything else as a string`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigureSet,
	}
}

func newConfigureGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigureGet,
	}
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			logrus.Warnf("Configuration file already exists: %s", path)
			ok, err := confirmOverwrite()
			if err != nil {
				return err
			}
			if !ok {
				logrus.Info("Configuration initialization cancelled")
				return nil
			}
		}
	}

	if err := models.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	logrus.Infof("Configuration initialized: %s", path)
	logrus.Info("Set NEURA_ROUTER_API_KEY in the environment or a .env file before running scans.")
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	cfg, err := ResolveConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	shown.AI.APIKey = content_analysis.MaskSecret(cfg.AI.APIKey)

	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Printf("# %s\n", DefaultConfigPath())
	fmt.Print(string(out))
	return nil
}

func runConfigureSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	path := DefaultConfigPath()

	doc, err := loadConfigDocument(path)
	if err != nil {
		return err
	}
	val := parseValueForKey(key, args[1])
	setNested(doc, strings.Split(key, "."), val)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	cfg := models.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := writeYAMLFile(path, data); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	logrus.Infof("Set %s = %v in %s", key, val, path)
	return nil
}

func runConfigureGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	cfg, err := ResolveConfig()
	if err != nil {
		return err
	}
	cfg.AI.APIKey = content_analysis.MaskSecret(cfg.AI.APIKey)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	val, ok := getNested(doc, strings.Split(key, "."))
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	fmt.Printf("%s = %v\n", key, val)
	return nil
}

func loadConfigDocument(path string) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc, nil
}

func writeYAMLFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	k := keys[0]
	child, ok := dst[k].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[k] = child
}

func getNested(src map[string]interface{}, keys []string) (interface{}, bool) {
	var cur interface{} = src
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func parseValueForKey(key, s string) interface{} {
	trim := strings.TrimSpace(s)
	lower := strings.ToLower(key)

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "ttl") || strings.Contains(lower, "retention") {
		if d, err := time.ParseDuration(trim); err == nil {
			return d.String()
		}
	}
	if b, err := strconv.ParseBool(trim); err == nil {
		return b
	}
	if i, err := strconv.Atoi(trim); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trim, 64); err == nil {
		return f
	}
	return trim
}

func confirmOverwrite() (bool, error) {
	fmt.Print("Configuration file already exists. Overwrite? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
