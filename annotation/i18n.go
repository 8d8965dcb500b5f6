package annotation

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localesFS embed.FS

var (
	bundle        *i18n.Bundle
	defaultLocal  *i18n.Localizer
	currentLocale = "en"
)

type localizerKey struct{}

func init() {
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, locale := range []string{"en", "pt-BR"} {
		if _, err := bundle.LoadMessageFileFS(localesFS, "locales/"+locale+".json"); err != nil {
			log.Warnf("i18n: failed to load locale %s: %v", locale, err)
		}
	}
	defaultLocal = i18n.NewLocalizer(bundle, currentLocale)
}

// SetLanguage sets the language used when a request names none
func SetLanguage(lang string) {
	if lang == "" {
		return
	}
	currentLocale = lang
	defaultLocal = i18n.NewLocalizer(bundle, currentLocale)
}

// GetLocalizerFromContext retrieves the localizer from context, or returns default
func GetLocalizerFromContext(ctx context.Context) *i18n.Localizer {
	if ctx == nil {
		return defaultLocal
	}
	if localizer, ok := ctx.Value(localizerKey{}).(*i18n.Localizer); ok {
		return localizer
	}
	return defaultLocal
}

// WithLocalizer adds a localizer to the context
func WithLocalizer(ctx context.Context, localizer *i18n.Localizer) context.Context {
	return context.WithValue(ctx, localizerKey{}, localizer)
}

// GetLocalizerFromRequest creates a localizer based on the Accept-Language header
func GetLocalizerFromRequest(r *http.Request) *i18n.Localizer {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	langs := make([]string, 0, len(tags)+1)
	if err == nil {
		for _, tag := range tags {
			langs = append(langs, tag.String())
		}
	}
	langs = append(langs, currentLocale)
	return i18n.NewLocalizer(bundle, langs...)
}

// Localize translates messageID with the localizer carried by ctx. The id
// itself is returned when no translation exists.
func Localize(ctx context.Context, messageID string, data map[string]any) string {
	msg, err := GetLocalizerFromContext(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}
