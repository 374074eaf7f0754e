package config

import "os"

func IsDebug() bool {
	return os.Getenv("TAZAMEM_DEBUG") == "1"
}
