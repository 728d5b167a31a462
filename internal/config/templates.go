package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	case "directory":
		return directoryTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `caller_id = "/talker"
host = "localhost"
listen_addr = ":7000"
admin_addr = ":9090"
cors_origins = ["http://localhost:3000"]
directory_file = "cmd/tcprosctl/directory.toml"

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
write_timeout = "5s"
read_timeout = "0s"
queue_size = 256
queue_policy = "block"
tcp_nodelay = true
max_header_bytes = 1048576
`

const directoryTemplate = `[[topic]]
name = "/chatter"
type = "std_msgs/String"
publishers = ["localhost:7000"]
`
