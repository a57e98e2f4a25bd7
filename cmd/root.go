package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/rules"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "nudger"
)

type Config struct {
	Database   string            `mapstructure:"database"`
	Workers    int               `mapstructure:"workers"`
	Snapshot   *SnapshotConfig   `mapstructure:"snapshot"`
	API        *APIConfig        `mapstructure:"api"`
	Redis      *RedisConfig      `mapstructure:"redis"`
	Enrollment *EnrollmentConfig `mapstructure:"enrollment"`
	Defaults   nudge.Defaults    `mapstructure:"defaults"`
	Rules      rules.Config      `mapstructure:"rules"`
}

type SnapshotConfig struct {
	// Source is either "store" (local career tables) or "api".
	Source  string        `mapstructure:"source"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type APIConfig struct {
	URL       string `mapstructure:"url"`
	TokenFile string `mapstructure:"token-file"`
	UserAgent string `mapstructure:"user-agent"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	PasswordFile string        `mapstructure:"password-file"`
	LockTTL      time.Duration `mapstructure:"lock-ttl"`
}

type EnrollmentConfig struct {
	All   bool     `mapstructure:"all"`
	Users []string `mapstructure:"users"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "nudger evaluates career nudge rules for users and tracks what they do with the nudges",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"database":            "NUDGER_DATABASE",
		"api.token-file":      "NUDGER_API_TOKEN_FILE",
		"redis.password-file": "NUDGER_REDIS_PASSWORD_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is nudger.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("database", "", "path to the sqlite database")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text or json")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

func setDefaults() {
	viper.SetDefault("database", app+".db")
	viper.SetDefault("workers", 4)
	viper.SetDefault("snapshot.source", "store")
	viper.SetDefault("snapshot.timeout", 5*time.Second)
	viper.SetDefault("redis.lock-ttl", 30*time.Second)
	viper.SetDefault("enrollment.all", true)

	d := nudge.StandardDefaults()
	viper.SetDefault("defaults.agent-enabled", d.AgentEnabled)
	viper.SetDefault("defaults.proactive-enabled", d.ProactiveEnabled)
	viper.SetDefault("defaults.daily-limit", d.DailyLimit)
	viper.SetDefault("defaults.quiet-hours-start", d.QuietHoursStart)
	viper.SetDefault("defaults.quiet-hours-end", d.QuietHoursEnd)
	viper.SetDefault("defaults.timezone", d.Timezone)
	viper.SetDefault("defaults.channels", d.Channels)

	r := rules.DefaultConfig()
	viper.SetDefault("rules.interview-lookahead", r.InterviewLookahead)
	viper.SetDefault("rules.application-stale-after", r.ApplicationStaleAfter)
	viper.SetDefault("rules.goal-stall-after", r.GoalStallAfter)
	viper.SetDefault("rules.resume-min-score", r.ResumeMinScore)
	viper.SetDefault("rules.skill-gap-min-missing", r.SkillGapMinMissing)
	viper.SetDefault("rules.inactive-after", r.InactiveAfter)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Config file is optional unless given explicitly. Defaults cover everything else.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
