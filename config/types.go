package config

import "time"

type Config struct {
	Server        Server
	Database      Database
	Registrar     Registrar
	Monitor       Monitor
	Waitlist      Waitlist
	Notifications Notifications
}

type Server struct {
	Addr    string `mapstructure:"addr"`
	BaseURL string `mapstructure:"base_url"`
}

type Database struct {
	Type      string `mapstructure:"type"`
	Mongo     Mongo
	SQLite    SQLite
	Firestore Firestore
}

type Mongo struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type SQLite struct {
	ConnectionString string `mapstructure:"connection_string"`
}

type Firestore struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type Registrar struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Monitor struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type Waitlist struct {
	MaxSubscriptions int `mapstructure:"max_subscriptions"`
}

type Notifications struct {
	EmailSmtp EmailSmtp
	Twilio    Twilio
}

type EmailSmtp struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type Twilio struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}
