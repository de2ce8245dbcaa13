package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

func ReadConfig() (Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("database.type", "mongo")
	viper.SetDefault("database.mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.mongo.database", "seatsnatch")
	viper.SetDefault("database.mongo.operation_timeout", "10s")
	viper.SetDefault("database.sqlite.connection_string", "seatsnatch.db")
	viper.SetDefault("registrar.timeout", "15s")
	viper.SetDefault("monitor.refresh_interval", "2m")
	viper.SetDefault("waitlist.max_subscriptions", 8)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, continuing with env and defaults")
		} else {
			// Config file was found but another error was produced
			return Config{}, fmt.Errorf("failed to read config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}

	return config, nil
}
