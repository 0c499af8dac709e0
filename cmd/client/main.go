package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chronoswatch/client/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	serverURL = configVar[string]{
		envKey:       "CHRONOS_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "http://localhost:8080",
	}
	roomCode = configVar[string]{
		envKey:       "CHRONOS_ROOM",
		flagKey:      "room",
		defaultValue: "",
	}
	nickname = configVar[string]{
		envKey:       "CHRONOS_NICKNAME",
		flagKey:      "nickname",
		defaultValue: "",
	}
	create = configVar[bool]{
		envKey:       "CHRONOS_CREATE",
		flagKey:      "create",
		defaultValue: false,
	}
	logLevel = configVar[string]{
		envKey:       "CHRONOS_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	sessionDir = configVar[string]{
		envKey:       "CHRONOS_SESSION_DIR",
		flagKey:      "session-dir",
		defaultValue: "",
	}
	statusAddr = configVar[string]{
		envKey:       "CHRONOS_STATUS_ADDR",
		flagKey:      "status-addr",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, "Backend base URL")
	pflag.String(roomCode.flagKey, roomCode.defaultValue, "Room code to join")
	pflag.String(nickname.flagKey, nickname.defaultValue, "Display nickname")
	pflag.Bool(create.flagKey, create.defaultValue, "Create a new room instead of joining")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(sessionDir.flagKey, sessionDir.defaultValue, "Directory for the persisted session")
	pflag.String(statusAddr.flagKey, statusAddr.defaultValue, "Local status server address, empty to disable")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(serverURL.flagKey, serverURL.envKey)
	viper.BindEnv(roomCode.flagKey, roomCode.envKey)
	viper.BindEnv(nickname.flagKey, nickname.envKey)
	viper.BindEnv(create.flagKey, create.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(sessionDir.flagKey, sessionDir.envKey)
	viper.BindEnv(statusAddr.flagKey, statusAddr.envKey)

	viper.SetDefault(serverURL.flagKey, serverURL.defaultValue)
	viper.SetDefault(roomCode.flagKey, roomCode.defaultValue)
	viper.SetDefault(nickname.flagKey, nickname.defaultValue)
	viper.SetDefault(create.flagKey, create.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(sessionDir.flagKey, sessionDir.defaultValue)
	viper.SetDefault(statusAddr.flagKey, statusAddr.defaultValue)

	config := &app.AppConfig{
		ServerURL:  viper.GetString(serverURL.flagKey),
		RoomCode:   viper.GetString(roomCode.flagKey),
		Nickname:   viper.GetString(nickname.flagKey),
		Create:     viper.GetBool(create.flagKey),
		LogLevel:   viper.GetString(logLevel.flagKey),
		SessionDir: viper.GetString(sessionDir.flagKey),
		StatusAddr: viper.GetString(statusAddr.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting client with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
