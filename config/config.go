package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/json-iterator/go"
)

// Duration is a time.Duration, which is represented in JSON as a Go duration string,
// e.g. "5s" or "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

type (
	Server struct {
		// Name is sent in the Server header of every response.
		Name string `json:"name"`
	}

	NET struct {
		// ReadBufferSize is a size of a single read from the socket.
		ReadBufferSize int `json:"read_buffer_size"`
		// ReadTimeout bounds every wait for the connection to become readable. A client
		// staying silent longer is considered to have sent an empty request.
		ReadTimeout Duration `json:"read_timeout"`
		// MaxRequestSize limits the request head (request line and headers). Heads not
		// terminated within this limit are answered with 413.
		MaxRequestSize int `json:"max_request_size"`
	}

	Body struct {
		// MaxSize is the maximal declared Content-Length. Requests declaring more are
		// rejected before the body is read.
		MaxSize int `json:"max_size"`
	}

	Admission struct {
		// MaxHandlers limits connections being processed simultaneously. Exceeding
		// connections are answered with 503.
		MaxHandlers int `json:"max_handlers"`
		// MaxPerAddress limits simultaneous connections from a single remote address.
		// Exceeding connections are answered with 429.
		MaxPerAddress int `json:"max_per_address"`
	}

	Static struct {
		// Root is the document root. It's canonicalized once at startup.
		Root string `json:"root"`
		// IndexFiles are tried in order when a directory is requested.
		IndexFiles []string `json:"index_files"`
		// MaxFileSize limits files served directly. Bigger ones result in 500.
		MaxFileSize int64 `json:"max_file_size"`
		// Deny lists file and directory names that are never served, regardless of
		// whether they exist. Every segment of the path is matched, so nothing inside
		// a denied directory is served either.
		Deny []string `json:"deny"`
	}

	Script struct {
		// Extension marks files which are executed instead of being served.
		Extension string `json:"extension"`
		// Interpreter is the executable receiving the script path as its argument.
		Interpreter string `json:"interpreter"`
		// Timeout is the wall-clock deadline for the first byte of the interpreter output.
		// It can't exceed the NET.ReadTimeout.
		Timeout Duration `json:"timeout"`
		// DrainTimeout bounds the whole output, counting from the interpreter start. An
		// interpreter which didn't close its output by then is killed. Values below the
		// Timeout are raised to it.
		DrainTimeout Duration `json:"drain_timeout"`
		// ReapGrace is how long the interpreter may linger after closing its output before
		// it's forcefully killed. Zero disables killing, so the interpreter is waited for
		// until the DrainTimeout expires.
		ReapGrace Duration `json:"reap_grace"`
		// MaxOutput limits the collected output. Everything above is dropped.
		MaxOutput int `json:"max_output"`
		// Env is passed to the interpreter in addition to the request variables. Nothing
		// else from the server environment is inherited.
		Env map[string]string `json:"env" test:"nullable"`
	}
)

// Config holds all the server settings: limits, timeouts and the filesystem layout.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	Server    Server    `json:"server"`
	NET       NET       `json:"net"`
	Body      Body      `json:"body"`
	Admission Admission `json:"admission"`
	Static    Static    `json:"static"`
	Script    Script    `json:"script"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Server: Server{
			Name: "origin",
		},
		NET: NET{
			ReadBufferSize: 4 * 1024,
			ReadTimeout:    Duration(10 * time.Second),
			MaxRequestSize: 16 * 1024,
		},
		Body: Body{
			MaxSize: 1024 * 1024,
		},
		Admission: Admission{
			MaxHandlers:   100,
			MaxPerAddress: 10,
		},
		Static: Static{
			Root:        "./www",
			IndexFiles:  []string{"index.html", "index.htm", "index.php"},
			MaxFileSize: 16 * 1024 * 1024,
			Deny: []string{
				".git", ".svn", ".hg", ".env", ".htaccess", ".htpasswd", ".DS_Store",
				"web.config", "composer.json", "composer.lock", "package.json",
			},
		},
		Script: Script{
			Extension:    ".php",
			Interpreter:  "/usr/bin/php",
			Timeout:      Duration(5 * time.Second),
			DrainTimeout: Duration(30 * time.Second),
			ReapGrace:    Duration(2 * time.Second),
			MaxOutput:    8 * 1024 * 1024,
			Env:          make(map[string]string),
		},
	}
}

// Load reads the JSON file at path on top of the defaults, so only overridden values
// must be present in it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate reports settings which make no sense. The script timeout exceeding the read
// timeout and the drain timeout falling behind the script timeout are clamped instead.
func (c *Config) Validate() error {
	var errs []error

	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.NET.ReadBufferSize > 0, "net.read_buffer_size must be positive")
	check(c.NET.ReadTimeout > 0, "net.read_timeout must be positive")
	check(c.NET.MaxRequestSize > 0, "net.max_request_size must be positive")
	check(c.Body.MaxSize >= 0, "body.max_size must not be negative")
	check(c.Admission.MaxHandlers > 0, "admission.max_handlers must be positive")
	check(c.Admission.MaxPerAddress > 0, "admission.max_per_address must be positive")
	check(len(c.Static.Root) > 0, "static.root must be set")
	check(c.Static.MaxFileSize > 0, "static.max_file_size must be positive")
	check(len(c.Script.Extension) > 1 && c.Script.Extension[0] == '.',
		"script.extension must start with a dot")
	check(c.Script.Timeout > 0, "script.timeout must be positive")
	check(c.Script.DrainTimeout >= 0, "script.drain_timeout must not be negative")
	check(c.Script.ReapGrace >= 0, "script.reap_grace must not be negative")
	check(c.Script.MaxOutput > 0, "script.max_output must be positive")

	if c.Script.Timeout > c.NET.ReadTimeout {
		c.Script.Timeout = c.NET.ReadTimeout
	}

	if c.Script.DrainTimeout < c.Script.Timeout {
		c.Script.DrainTimeout = c.Script.Timeout
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}
