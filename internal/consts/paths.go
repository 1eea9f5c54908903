package consts

import (
	"os"
	"path/filepath"
)

const (
	ClawdeckDirName = ".clawdeck"
	ConfigFileName  = "config.yaml"
	DataFileName    = "clawdeck.db"
)

func ClawdeckHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ClawdeckDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(ClawdeckHomeDir(), ConfigFileName)
}

func DefaultDataPath() string {
	return filepath.Join(ClawdeckHomeDir(), DataFileName)
}
