package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.allowed_chat_ids", []string{})

	viper.SetDefault("bot.max_concurrency", 3)

	viper.SetDefault("run.timeout", 12*time.Second)
	viper.SetDefault("run.python_bin", "python3")
	viper.SetDefault("run.max_output_chars", 4096)
	viper.SetDefault("run.max_capture_bytes", int64(256*1024))

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)
}
