package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Global flags.
var Verbose = GBool("verbose", "V", false, "Enable verbose logging")
var Dumb = GBool("dumb", "D", IsTermDumb(), "Disable colored console output")
var EnvName = GString("env", "E", "", "Environment name, used for running multiple instances of lrpc")
var ConfigFile = GString("config", "c", "", "Path of the YAML configuration file")
var LogFile = GString("log-file", "", "", "Write logs to this file as well (relative paths go under the log dir)")

var cache = sync.Map{}

func mkdironce(dir string) {
	if _, loaded := cache.LoadOrStore(dir, true); !loaded {
		os.MkdirAll(dir, 0755)
	}
}

// Home directory.
func Home() (home string) {
	userDir, _ := os.UserHomeDir()
	if *EnvName == "" {
		home = filepath.Join(userDir, ".lrpc")
	} else if filepath.IsAbs(*EnvName) {
		home = *EnvName
	} else {
		home = filepath.Join(userDir, ".lrpc-"+*EnvName)
	}
	mkdironce(home)
	return
}

type Subdir string

const (
	LogDir Subdir = "log"
)

func (s Subdir) Path() string {
	path := filepath.Join(Home(), string(s))
	mkdironce(path)
	return path
}
func (s Subdir) File(name string) string {
	return filepath.Join(s.Path(), name)
}

var RootCommand = &cobra.Command{
	Use:           "lrpc",
	Short:         "lrpc serves and calls functions that take and return other functions over the network.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func getenv(name string) (string, bool) {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "-", "_")
	return os.LookupEnv("LRPC_" + name)
}
func GInt(name, shorthand string, value int, usage string) *int {
	flags := RootCommand.PersistentFlags()
	if env, ok := getenv(name); ok {
		if v, e := strconv.Atoi(env); e == nil {
			value = v
		}
	}
	flags.IntVarP(&value, name, shorthand, value, usage)
	return &value
}
func GString(name, shorthand string, value string, usage string) *string {
	flags := RootCommand.PersistentFlags()
	if env, ok := getenv(name); ok {
		value = env
	}
	flags.StringVarP(&value, name, shorthand, value, usage)
	return &value
}
func GBool(name, shorthand string, value bool, usage string) *bool {
	flags := RootCommand.PersistentFlags()
	if env, ok := getenv(name); ok {
		if v, e := strconv.ParseBool(env); e == nil {
			value = v
		}
	}
	flags.BoolVarP(&value, name, shorthand, value, usage)
	return &value
}

func IsTermDumb() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	for _, env := range []string{"LRPC_NON_INTERACTIVE", "CI", "NO_COLOR"} {
		if v, ok := os.LookupEnv(env); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
			return v != ""
		}
	}
	return false
}
