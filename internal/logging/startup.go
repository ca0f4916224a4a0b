package logging

import (
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resource groups reported under "resources" in the startup event.
const (
	resourceBuckets = "s3Buckets"
	resourceTables  = "dynamoTables"
	resourceParams  = "ssmParams"
)

// StartupLogger collects the server's identity, backing resources and feature
// flags, then emits one structured event describing how the process came up.
type StartupLogger struct {
	name, mode            string
	commitHash, buildTime string
	initDuration          time.Duration

	resources map[string]map[string]string // group -> label -> name
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the named binary.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		resources: map[string]map[string]string{},
		features:  map[string]bool{},
		config:    map[string]string{},
	}
}

// Mode records how the server is hosted ("local" or "lambda").
func (s *StartupLogger) Mode(mode string) *StartupLogger { s.mode = mode; return s }

// CommitHash sets the git commit baked in with -ldflags.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger { s.commitHash = hash; return s }

// BuildTime sets the build timestamp baked in with -ldflags.
func (s *StartupLogger) BuildTime(t string) *StartupLogger { s.buildTime = t; return s }

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger { s.initDuration = d; return s }

// S3Bucket registers the bucket holding analysed images.
func (s *StartupLogger) S3Bucket(label, name string) *StartupLogger {
	return s.resource(resourceBuckets, label, name)
}

// DynamoTable registers the table holding records and chats.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	return s.resource(resourceTables, label, name)
}

// SSMParam registers a parameter path. Values are never logged.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	return s.resource(resourceParams, label, path)
}

// Feature registers an on/off capability, e.g. whether images are persisted.
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive setting.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// resource ignores empty names so unconfigured backends stay out of the event.
func (s *StartupLogger) resource(group, label, name string) *StartupLogger {
	if name == "" {
		return s
	}
	if s.resources[group] == nil {
		s.resources[group] = map[string]string{}
	}
	s.resources[group][label] = name
	return s
}

// EnvOrDefault returns the named environment variable, or def when it is
// empty or unset.
func EnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// Event adds the startup fields to evt without sending it.
func (s *StartupLogger) Event(evt *zerolog.Event) *zerolog.Event {
	evt = evt.Dict("process", s.processDict())

	if len(s.resources) > 0 {
		res := zerolog.Dict()
		for _, group := range sortedKeys(s.resources) {
			res = res.Dict(group, strDict(s.resources[group]))
		}
		evt = evt.Dict("resources", res)
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(s.features) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", strDict(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	return evt
}

func (s *StartupLogger) processDict() *zerolog.Event {
	d := zerolog.Dict().
		Str("name", s.name).
		Str("mode", s.mode).
		Str("goVersion", runtime.Version()).
		Str("logLevel", ParseLevel(os.Getenv(LevelEnv)).String())
	if s.commitHash != "" {
		d = d.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		d = d.Str("buildTime", s.buildTime)
	}
	// Lambda runtime metadata, present only when hosted there.
	for field, env := range map[string]string{
		"functionName": "AWS_LAMBDA_FUNCTION_NAME",
		"version":      "AWS_LAMBDA_FUNCTION_VERSION",
		"memoryMB":     "AWS_LAMBDA_FUNCTION_MEMORY_SIZE",
		"region":       "AWS_REGION",
	} {
		if v := os.Getenv(env); v != "" {
			d = d.Str(field, v)
		}
	}
	return d
}

// Log emits the startup event at info level.
func (s *StartupLogger) Log() {
	s.Event(log.Info()).Msg("Server startup complete")
}

func strDict(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
