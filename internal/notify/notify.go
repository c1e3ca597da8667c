// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers localized, user-visible notices.
package notify

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every key must exist in.
const BaseLocale = "en-US"

// Level is the severity of a notice.
type Level uint8

// Notice levels.
const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Key identifies a message in the catalog.
type Key string

// Message keys.
const (
	PermissionDenied    Key = "theatre.permission_denied"
	ActorNotFound       Key = "theatre.actor_not_found"
	LoadFailed          Key = "theatre.load_failed"
	AccumulatorNegative Key = "theatre.accumulator_negative"
	HotEject            Key = "theatre.hot_eject"
	ResyncTimeout       Key = "theatre.resync_timeout"
	ResyncApplied       Key = "theatre.resync_applied"
	NarratorOn          Key = "theatre.narrator_on"
	NarratorOff         Key = "theatre.narrator_off"
	NotGM               Key = "theatre.not_gm"
)

// Notice is one rendered notification.
type Notice struct {
	Level Level
	Key   Key
	Text  string
}

// Notifier surfaces notices to the local user.
type Notifier interface {
	Notify(ctx context.Context, level Level, key Key, args ...any)
}

// Sink receives rendered notices.
type Sink func(ctx context.Context, n Notice)

// LogSink writes notices to the default slog logger.
func LogSink(ctx context.Context, n Notice) {
	lvl := slog.LevelInfo
	switch n.Level {
	case LevelWarn:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	slog.Log(ctx, lvl, n.Text, "notice", string(n.Key))
}

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog holds every locale's messages.
type Catalog struct {
	builder *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
}

// LoadCatalog loads the embedded locales.
func LoadCatalog() (*Catalog, error) {
	return LoadCatalogFS(embeddedLocales, "locales")
}

// LoadCatalogFS loads every *.yaml locale file under dir.
func LoadCatalogFS(fsys fs.FS, dir string) (*Catalog, error) {
	paths, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, oops.In("notify").Wrapf(err, "glob locales")
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	builder := catalog.NewBuilder(catalog.Fallback(base))
	tags := []language.Tag{base}
	seenBase := false

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, oops.In("notify").With("path", p).Wrapf(err, "read locale")
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, oops.In("notify").With("path", p).Wrapf(err, "parse locale")
		}
		tag, err := language.Parse(strings.TrimSpace(file.Locale))
		if err != nil {
			return nil, oops.In("notify").With("path", p).With("locale", file.Locale).Wrapf(err, "parse locale tag")
		}
		if tag == base {
			seenBase = true
		} else {
			tags = append(tags, tag)
		}
		for key, msg := range file.Messages {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, oops.In("notify").With("key", key).Wrapf(err, "register message")
			}
		}
	}
	if !seenBase {
		return nil, oops.In("notify").Errorf("base locale %s is not defined", BaseLocale)
	}

	return &Catalog{
		builder: builder,
		tags:    tags,
		matcher: language.NewMatcher(tags),
	}, nil
}

// Printer returns a printer for the best match of locale.
func (c *Catalog) Printer(locale string) *message.Printer {
	_, idx := language.MatchStrings(c.matcher, locale)
	return message.NewPrinter(c.tags[idx], message.Catalog(c.builder))
}

// Localized renders notices through a catalog and hands them to a sink.
type Localized struct {
	printer *message.Printer
	sink    Sink
}

var _ Notifier = (*Localized)(nil)

// NewLocalized creates a notifier printing in locale.
func NewLocalized(c *Catalog, locale string, sink Sink) *Localized {
	if sink == nil {
		sink = LogSink
	}
	return &Localized{printer: c.Printer(locale), sink: sink}
}

// Notify implements Notifier.
func (l *Localized) Notify(ctx context.Context, level Level, key Key, args ...any) {
	l.sink(ctx, Notice{
		Level: level,
		Key:   key,
		Text:  l.printer.Sprintf(string(key), args...),
	})
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

var _ Notifier = (*Recorder)(nil)

// Notify implements Notifier. Text holds the raw arguments.
func (r *Recorder) Notify(_ context.Context, level Level, key Key, args ...any) {
	r.Record(context.Background(), Notice{Level: level, Key: key, Text: fmt.Sprint(args...)})
}

// Record is a Sink that stores n.
func (r *Recorder) Record(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of everything recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Keys returns the recorded keys in order.
func (r *Recorder) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Key, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Key)
	}
	return out
}
