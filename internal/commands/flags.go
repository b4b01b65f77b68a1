package commands

import "studycompanion/server/internal/config"

// Flags holds global flag values and the configuration loaded in Before
type Flags struct {
	LogLevel  string
	LogFormat string
	Config    *config.Config
}
