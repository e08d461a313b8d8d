package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/indigo-web/origin/config"
	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/mime"
	"github.com/indigo-web/origin/http/status"
	"github.com/indigo-web/origin/internal/pathlib"
	"github.com/indigo-web/utils/strcomp"
	"github.com/rs/zerolog"
)

// Executor runs a script, returning its output. Nil error means success.
type Executor interface {
	Run(ctx context.Context, script string, request *http.Request) ([]byte, error)
}

// Dispatcher maps a request onto a resource: a static file, a script or a directory
// index. Directory listings are never produced
type Dispatcher struct {
	resolver    *pathlib.Resolver
	executor    Executor
	indexFiles  []string
	scriptExt   string
	maxFileSize int64
}

func New(cfg *config.Config, resolver *pathlib.Resolver, executor Executor) *Dispatcher {
	return &Dispatcher{
		resolver:    resolver,
		executor:    executor,
		indexFiles:  cfg.Static.IndexFiles,
		scriptExt:   cfg.Script.Extension,
		maxFileSize: cfg.Static.MaxFileSize,
	}
}

// Dispatch builds the response for a valid request. Every failure is converted into
// the nearest status code, so a response is always returned. The logger is taken
// from the context
func (d *Dispatcher) Dispatch(ctx context.Context, request *http.Request) *http.Response {
	log := zerolog.Ctx(ctx)

	path, outcome := d.resolver.Resolve(request.Path)
	switch outcome {
	case pathlib.Rejected:
		log.Warn().Str("path", request.Path).Msg("rejected path: malformed or escapes the root")
		return http.Error(status.ErrInvalidPath)
	case pathlib.Forbidden:
		log.Warn().Str("path", request.Path).Msg("rejected path: forbidden name")
		return http.Error(status.ErrAccessDenied)
	}

	info, err := os.Stat(path)
	if err != nil {
		return d.statError(log, path, err)
	}

	if info.IsDir() {
		return d.index(ctx, request, path)
	}

	if d.isScript(path) {
		return d.script(ctx, path, request)
	}

	return d.static(log, path, info)
}

func (d *Dispatcher) index(ctx context.Context, request *http.Request, dir string) *http.Response {
	log := zerolog.Ctx(ctx)

	for _, name := range d.indexFiles {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}

		canonical, err := filepath.EvalSymlinks(candidate)
		if err != nil || d.resolver.IsForbidden(canonical) {
			log.Warn().Str("index", candidate).Msg("index file is not servable")
			return http.Error(status.ErrAccessDenied)
		}

		if d.isScript(canonical) {
			indexRequest := http.NewRequest(method.GET, indexTarget(request.Path, name), request.Protocol)
			return d.script(ctx, canonical, indexRequest)
		}

		return d.static(log, canonical, info)
	}

	log.Debug().Str("dir", dir).Msg("no index file")
	return http.Error(status.ErrAccessDenied)
}

func (d *Dispatcher) script(ctx context.Context, path string, request *http.Request) *http.Response {
	output, err := d.executor.Run(ctx, path, request)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("script", path).Int("output", len(output)).Msg("script failed")
		return http.Error(status.ErrScriptFailed)
	}

	return http.NewResponse().
		ContentType(mime.HTML).
		Bytes(output)
}

func (d *Dispatcher) static(log *zerolog.Logger, path string, info fs.FileInfo) *http.Response {
	if !info.Mode().IsRegular() {
		log.Warn().Str("file", path).Stringer("mode", info.Mode()).Msg("not a regular file")
		return http.Error(status.ErrAccessDenied)
	}

	content, err := readFile(path, d.maxFileSize)
	if err != nil {
		return d.statError(log, path, err)
	}

	return http.NewResponse().
		ContentType(mime.ByExtension(filepath.Ext(path))).
		Bytes(content)
}

func (d *Dispatcher) statError(log *zerolog.Logger, path string, err error) *http.Response {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("file", path).Msg("not found")
		return http.Error(status.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		log.Warn().Str("file", path).Err(err).Msg("permission denied")
		return http.Error(status.ErrAccessDenied)
	default:
		log.Error().Str("file", path).Err(err).Msg("cannot read file")
		return http.Error(status.ErrInternalServerError)
	}
}

func (d *Dispatcher) isScript(path string) bool {
	return strcomp.EqualFold(filepath.Ext(path), d.scriptExt)
}

var errFileTooLarge = errors.New("file exceeds the size limit")

// readFile reads the whole file, failing if it turns out to be larger than the limit
func readFile(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%s: %w", path, errFileTooLarge)
	}

	return content, nil
}

// indexTarget returns the request target pointing to the index file in the directory
func indexTarget(dir, name string) string {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	return dir + name
}
