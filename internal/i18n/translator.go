package i18n

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/internal/domain"
)

// SettingsSource resolves a user's stored settings.
type SettingsSource interface {
	GetUserSettings(ctx context.Context, userID int64) (domain.Settings, error)
}

// Translator renders messages in each user's preferred language.
type Translator struct {
	catalog  *Catalog
	settings SettingsSource
}

// NewTranslator returns a translator. A nil settings source always uses the primary language.
func NewTranslator(catalog *Catalog, settings SettingsSource) *Translator {
	return &Translator{catalog: catalog, settings: settings}
}

// Catalog exposes the underlying catalog.
func (t *Translator) Catalog() *Catalog { return t.catalog }

// Language resolves the user's language, falling back to the primary one.
func (t *Translator) Language(ctx context.Context, userID int64) domain.Language {
	if userID == 0 || t.settings == nil {
		return domain.LanguagePrimary
	}
	s, err := t.settings.GetUserSettings(ctx, userID)
	if err != nil {
		logger.Warn(ctx, "i18n", "language.resolve.failed",
			slog.Int64("owner_id", userID),
			slog.String("err", err.Error()),
		)
		return domain.LanguagePrimary
	}
	if !s.Language.Valid() {
		return domain.LanguagePrimary
	}
	return s.Language
}

// Translate renders key for the user.
func (t *Translator) Translate(ctx context.Context, userID int64, key string, params Params) string {
	return t.catalog.Text(t.Language(ctx, userID), key, params)
}

// For binds the user's language once, for handlers that render several messages.
func (t *Translator) For(ctx context.Context, userID int64) Printer {
	return t.In(t.Language(ctx, userID))
}

// In returns a printer for a fixed language.
func (t *Translator) In(lang domain.Language) Printer {
	return Printer{lang: lang, catalog: t.catalog}
}

// Printer renders messages in one language.
type Printer struct {
	lang    domain.Language
	catalog *Catalog
}

// Lang is the printer's language.
func (p Printer) Lang() domain.Language { return p.lang }

// T renders key with optional params.
func (p Printer) T(key string, params ...Params) string {
	var merged Params
	switch len(params) {
	case 0:
	case 1:
		merged = params[0]
	default:
		merged = Params{}
		for _, ps := range params {
			for k, v := range ps {
				merged[k] = v
			}
		}
	}
	return p.catalog.Text(p.lang, key, merged)
}

// Minutes renders a minute count as hours and minutes: "1 hours 5 minutes", "2 hours", "0 minutes".
func (p Printer) Minutes(total int) string {
	if total < 0 {
		total = 0
	}
	h, m := total/60, total%60
	hours := strconv.Itoa(h) + " " + p.T("time.hours")
	minutes := strconv.Itoa(m) + " " + p.T("time.minutes")
	switch {
	case h > 0 && m > 0:
		return hours + " " + minutes
	case h > 0:
		return hours
	default:
		return minutes
	}
}
