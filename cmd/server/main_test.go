package main

import (
	"testing"

	"github.com/hibiken/asynq"

	"github.com/scribehook/api/internal/config"
)

func TestAsynqLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want asynq.LogLevel
	}{
		{"debug", asynq.DebugLevel},
		{"WARN", asynq.WarnLevel},
		{"error", asynq.ErrorLevel},
		{"info", asynq.InfoLevel},
		{"", asynq.InfoLevel},
	}

	for _, tt := range tests {
		if got := asynqLogLevel(tt.in); got != tt.want {
			t.Errorf("asynqLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedisOpt(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "redis:6379", Password: "pw", DB: 2}}

	opt := redisOpt(cfg)
	if opt.Addr != "redis:6379" || opt.Password != "pw" || opt.DB != 2 {
		t.Errorf("unexpected redis options %+v", opt)
	}
}
