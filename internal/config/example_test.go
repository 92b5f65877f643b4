package config_test

import (
	"fmt"

	"github.com/codefionn/netserver/internal/config"
)

func ExampleDefaultConfig() {
	cfg := config.DefaultConfig()
	fmt.Println(cfg)
	fmt.Println(config.DefaultChatConfig().Address())
	// Output:
	// localhost:9090 (max_connections: 10, timeout: 30s, buffer: 1024 bytes)
	// localhost:9091
}

func ExampleConfig_Validate() {
	cfg := config.DefaultConfig()
	cfg.Port = 70000
	fmt.Println(cfg.Validate())
	// Output:
	// invalid configuration: port must be between 1 and 65535, got 70000
}
